// Package protocol defines the JSON frames exchanged on the interview
// websocket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client frame types.
const (
	TypeCandidateTurn = "candidate_turn"
	TypeEndSession    = "end_session"
	TypePing          = "ping"
	TypePong          = "pong"
)

// Close reasons sent with websocket close frames.
const (
	CloseReasonInvalidSession = "Invalid session"
	CloseReasonSessionEnded   = "session ended"
	CloseReasonShutdown       = "server shutting down"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// CandidateTurn carries recognized candidate speech. IsFinal defaults to true
// when the field is absent.
type CandidateTurn struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Source  string `json:"source,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
}

type EndSession struct {
	Type string `json:"type"`
}

type Ping struct {
	Type string `json:"type"`
}

type Pong struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

func NewPong(sessionID string) Pong {
	return Pong{Type: TypePong, SessionID: sessionID}
}

// DecodeClientMessage returns CandidateTurn, EndSession or Ping.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeCandidateTurn:
		var raw struct {
			Text    string `json:"text"`
			IsFinal *bool  `json:"is_final"`
			Source  string `json:"source"`
			Seq     int64  `json:"seq"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, badRequest("invalid candidate_turn", "")
		}
		if raw.Seq < 0 {
			return nil, badRequest("candidate_turn.seq must be >= 0", "seq")
		}
		msg := CandidateTurn{
			Type:    TypeCandidateTurn,
			Text:    raw.Text,
			IsFinal: raw.IsFinal == nil || *raw.IsFinal,
			Source:  strings.TrimSpace(raw.Source),
			Seq:     raw.Seq,
		}
		return msg, nil
	case TypeEndSession:
		return EndSession{Type: TypeEndSession}, nil
	case TypePing:
		return Ping{Type: TypePing}, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}
