package interview

import (
	"encoding/base64"
	"time"
)

// Outbound event types.
const (
	EventStatus     = "status"
	EventTranscript = "transcript"
	EventAudioChunk = "audio_chunk"
	EventError      = "error"
)

// Status messages.
const (
	StatusConnected      = "connected"
	StatusSessionStarted = "session_started"
	StatusFinalizeReady  = "finalize_ready"
	StatusStreamClosed   = "stream_closed"
	StatusSessionClosed  = "session_closed"
)

const (
	RoleAssistant = "assistant"
	RoleCandidate = "candidate"
)

// Event is one outbound message for the client channel.
type Event struct {
	Type       string `json:"type"`
	Message    string `json:"message,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Role       string `json:"role,omitempty"`
	Text       string `json:"text,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	Data       string `json:"data,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

func StatusEvent(message, sessionID string) Event {
	return Event{Type: EventStatus, Message: message, SessionID: sessionID}
}

func TranscriptEvent(role, text string, at time.Time) Event {
	return Event{Type: EventTranscript, Role: role, Text: text, Timestamp: formatTime(at)}
}

func AudioChunkEvent(audio []byte, sampleRate int) Event {
	return Event{Type: EventAudioChunk, Data: base64.StdEncoding.EncodeToString(audio), SampleRate: sampleRate}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// TranscriptItem is one spoken turn.
type TranscriptItem struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Timeline event types.
const (
	TimelineQuestion          = "question"
	TimelineCandidateResponse = "candidate_response"
	TimelineFollowupSent      = "followup_question_sent"
	TimelineClosing           = "closing"
	TimelineAssistantMessage  = "assistant_message"
)

// TimelineEvent is the typed superset of a transcript entry.
type TimelineEvent struct {
	Type      string         `json:"type"`
	Role      string         `json:"role"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Exchange is one primary question with the final answer given to it.
type Exchange struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	WordCount int    `json:"word_count"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
