// Package bridge pumps events between an interview session and its client
// websocket.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/interview-live/pkg/core/interview"
	"github.com/vango-go/interview-live/pkg/gateway/live/protocol"
)

const priorityBuffer = 16

// Conn is the subset of *websocket.Conn the pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Session is the interview session surface driven by the pumps.
type Session interface {
	ID() string
	Events() *interview.EventQueue
	Done() <-chan struct{}
	HandleCandidateTurn(ctx context.Context, turn interview.CandidateTurn) error
	Close()
}

type Config struct {
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	MaxMessageBytes int64
}

type Dependencies struct {
	Conn    Conn
	Session Session
	Config  Config
	Logger  *slog.Logger
	// Tracker, when set, lets shutdown notify and cancel the connection.
	Tracker *Tracker
}

type pump struct {
	conn     Conn
	sess     Session
	cfg      Config
	logger   *slog.Logger
	priority chan []byte
}

// Run sends the connected status, then runs the outbound pump on the calling
// goroutine and the inbound pump beside it until the session ends, the client
// goes away, or ctx is canceled. The session is closed before Run returns.
func Run(ctx context.Context, deps Dependencies) error {
	if deps.Conn == nil || deps.Session == nil {
		return errors.New("bridge: conn and session are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	p := &pump{
		conn:     deps.Conn,
		sess:     deps.Session,
		cfg:      cfg,
		logger:   logger.With("session_id", deps.Session.ID()),
		priority: make(chan []byte, priorityBuffer),
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var shutdownOnce sync.Once
	shutdownCh := make(chan struct{})
	if deps.Tracker != nil {
		unregister := deps.Tracker.Register(p.sess.ID(), Handle{
			Cancel: func() {
				shutdownOnce.Do(func() { close(shutdownCh) })
				cancel()
			},
			Notify: p.notify,
		})
		defer unregister()
	}

	if cfg.MaxMessageBytes > 0 {
		p.conn.SetReadLimit(cfg.MaxMessageBytes)
	}
	if cfg.ReadTimeout > 0 {
		_ = p.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		p.conn.SetPongHandler(func(string) error {
			return p.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		})
	}

	if err := p.writeJSON(interview.StatusEvent(interview.StatusConnected, p.sess.ID())); err != nil {
		p.sess.Close()
		_ = p.conn.Close()
		return err
	}
	p.logger.Info("websocket connected")

	readDone := make(chan error, 1)
	go func() { readDone <- p.readLoop(connCtx) }()

	writeErr := p.writeLoop(connCtx)
	p.sess.Close()

	shutdown := ctx.Err() != nil
	select {
	case <-shutdownCh:
		shutdown = true
	default:
	}
	code, reason := websocket.CloseNormalClosure, protocol.CloseReasonSessionEnded
	if shutdown {
		code, reason = websocket.CloseGoingAway, protocol.CloseReasonShutdown
	}
	_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(cfg.WriteTimeout))
	_ = p.conn.Close()
	<-readDone

	p.logger.Info("websocket closed", "shutdown", shutdown)
	if writeErr != nil && !errors.Is(writeErr, context.Canceled) {
		return writeErr
	}
	return nil
}

// writeLoop is the only writer of data frames. Priority frames (pongs,
// notices) go before queued session events.
func (p *pump) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer ticker.Stop()
	events := p.sess.Events()

	for {
		select {
		case frame := <-p.priority:
			if err := p.write(frame); err != nil {
				return err
			}
			continue
		default:
		}

		if ev, ok := events.TryPop(); ok {
			if err := p.writeJSON(ev); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.sess.Done():
			return p.drain(events)
		case <-events.Ready():
		case frame := <-p.priority:
			if err := p.write(frame); err != nil {
				return err
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(p.cfg.WriteTimeout)); err != nil {
				return err
			}
		}
	}
}

// drain flushes what the session queued before it closed.
func (p *pump) drain(events *interview.EventQueue) error {
	for {
		ev, ok := events.TryPop()
		if !ok {
			return nil
		}
		if err := p.writeJSON(ev); err != nil {
			return err
		}
	}
}

func (p *pump) readLoop(ctx context.Context) error {
	for {
		typ, data, err := p.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Debug("websocket read ended", "error", err)
			}
			p.sess.Close()
			return err
		}
		if typ != websocket.TextMessage {
			continue
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			p.logger.Warn("ignoring client frame", "error", err)
			continue
		}
		switch m := msg.(type) {
		case protocol.CandidateTurn:
			p.logger.Debug("candidate_turn received", "is_final", m.IsFinal, "source", m.Source)
			err := p.sess.HandleCandidateTurn(ctx, interview.CandidateTurn{
				Text:    m.Text,
				IsFinal: m.IsFinal,
				Source:  m.Source,
				Seq:     m.Seq,
			})
			if errors.Is(err, interview.ErrSessionClosed) {
				return nil
			}
			if err != nil {
				p.logger.Warn("candidate turn failed", "error", err)
			}
		case protocol.EndSession:
			p.logger.Debug("end_session received")
			p.sess.Close()
			return nil
		case protocol.Ping:
			if b, err := json.Marshal(protocol.NewPong(p.sess.ID())); err == nil {
				p.enqueue(b)
			}
		}
	}
}

func (p *pump) notify(message string) error {
	b, err := json.Marshal(interview.StatusEvent(message, p.sess.ID()))
	if err != nil {
		return err
	}
	if !p.enqueue(b) {
		return errors.New("bridge: priority queue full")
	}
	return nil
}

func (p *pump) enqueue(frame []byte) bool {
	select {
	case p.priority <- frame:
		return true
	default:
		p.logger.Warn("dropping priority frame, queue full")
		return false
	}
}

func (p *pump) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.write(b)
}

func (p *pump) write(frame []byte) error {
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, frame)
}
