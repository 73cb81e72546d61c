package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

const (
	DefaultLiveModel = "gemini-2.0-flash-live-001"
	DefaultVoice     = "Aoede"
)

type GeminiLiveConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
}

// GeminiLive dials Gemini Live API sessions configured for spoken audio
// output with output transcription.
type GeminiLive struct {
	connect func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error)
	cfg     GeminiLiveConfig
}

// liveSession is the subset of *genai.Session used by the stream.
type liveSession interface {
	SendClientContent(input genai.LiveClientContentInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

func NewGeminiLive(client *genai.Client, cfg GeminiLiveConfig) *GeminiLive {
	g := &GeminiLive{cfg: normalizeLiveConfig(cfg)}
	if client != nil {
		g.connect = func(ctx context.Context, model string, lc *genai.LiveConnectConfig) (liveSession, error) {
			return client.Live.Connect(ctx, model, lc)
		}
	}
	return g
}

func normalizeLiveConfig(cfg GeminiLiveConfig) GeminiLiveConfig {
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = DefaultLiveModel
	}
	cfg.Voice = strings.TrimSpace(cfg.Voice)
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	return cfg
}

func (g *GeminiLive) Dial(ctx context.Context) (Stream, error) {
	if g == nil || g.connect == nil {
		return nil, fmt.Errorf("gemini live client is not configured")
	}
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.cfg.Voice},
			},
		},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if s := strings.TrimSpace(g.cfg.SystemInstruction); s != "" {
		lc.SystemInstruction = genai.NewContentFromText(s, genai.RoleUser)
	}
	sess, err := g.connect(ctx, g.cfg.Model, lc)
	if err != nil {
		return nil, fmt.Errorf("gemini live connect: %w", err)
	}
	return newGeminiStream(sess), nil
}

type geminiStream struct {
	sess liveSession

	sendMu sync.Mutex

	// pending and transcript are only touched by the Receive caller.
	pending    []Event
	transcript strings.Builder

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func newGeminiStream(sess liveSession) *geminiStream {
	return &geminiStream{sess: sess, closed: make(chan struct{})}
}

func (s *geminiStream) Send(ctx context.Context, text string, endOfTurn bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.closed:
		return ErrStreamClosed
	default:
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.sess.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: genai.Ptr(endOfTurn),
	})
}

// Receive returns audio chunks as they arrive and the output transcription of
// a model turn once that turn completes. An interrupted turn yields no text.
func (s *geminiStream) Receive(ctx context.Context) (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		select {
		case <-s.closed:
			return Event{}, ErrStreamClosed
		default:
		}

		msg, err := s.sess.Receive()
		if err != nil {
			select {
			case <-s.closed:
				return Event{}, ErrStreamClosed
			default:
			}
			return Event{}, fmt.Errorf("gemini live receive: %w", err)
		}
		s.absorb(msg)
	}
}

func (s *geminiStream) absorb(msg *genai.LiveServerMessage) {
	if msg == nil || msg.ServerContent == nil {
		return
	}
	sc := msg.ServerContent
	if sc.Interrupted {
		// Barge-in: the partial turn is discarded and the next one starts clean.
		s.transcript.Reset()
		return
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				s.pending = append(s.pending, Event{Audio: part.InlineData.Data})
			}
			if part.Text != "" && !part.Thought {
				s.transcript.WriteString(part.Text)
			}
		}
	}
	if sc.OutputTranscription != nil {
		s.transcript.WriteString(sc.OutputTranscription.Text)
	}
	if sc.TurnComplete {
		if text := strings.TrimSpace(s.transcript.String()); text != "" {
			s.pending = append(s.pending, Event{Text: text})
		}
		s.transcript.Reset()
	}
}

func (s *geminiStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.sess.Close()
	})
	return s.closeErr
}
