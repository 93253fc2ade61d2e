package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/proofline/internal/correction"
	"github.com/MrWong99/proofline/pkg/editor"
	"github.com/MrWong99/proofline/pkg/editor/memdoc"
)

// errDisconnected ends a session's errgroup when the client goes away.
var errDisconnected = errors.New("bridge: client disconnected")

// outboxSize bounds the server messages waiting for the writer.
const outboxSize = 256

// Session is one connected editor.
type Session struct {
	id      string
	conn    *websocket.Conn
	doc     *memdoc.Document
	engine  *correction.Engine
	log     *slog.Logger
	timeout time.Duration

	out      chan ServerMessage
	done     chan struct{}
	doneOnce sync.Once
}

func newSession(id string, conn *websocket.Conn, build func(editor.Surface) *correction.Engine, log *slog.Logger, writeTimeout time.Duration) *Session {
	s := &Session{
		id:      id,
		conn:    conn,
		doc:     memdoc.New(""),
		log:     log,
		timeout: writeTimeout,
		out:     make(chan ServerMessage, outboxSize),
		done:    make(chan struct{}),
	}
	s.engine = build(newRemoteSurface(s.doc, s.enqueue))
	s.doc.OnChange(s.engine.OnDocumentChanged)
	return s
}

// ID returns the session id sent to the client in the hello message.
func (s *Session) ID() string { return s.id }

// Engine returns the session's correction engine.
func (s *Session) Engine() *correction.Engine { return s.engine }

// run serves the connection until the client disconnects or ctx is done.
func (s *Session) run(ctx context.Context) error {
	enabled := s.engine.Enabled()
	_ = s.enqueue(ServerMessage{Type: TypeHello, Session: s.id, Enabled: &enabled})

	g, gctx := errgroup.WithContext(ctx)
	context.AfterFunc(gctx, s.stop)
	s.engine.Start(gctx)

	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.writeLoop(gctx) })
	g.Go(func() error {
		select {
		case <-s.engine.Done():
			if gctx.Err() != nil {
				return nil
			}
			return errors.New("bridge: engine stopped")
		case <-gctx.Done():
			return nil
		}
	})

	err := g.Wait()

	s.stop()
	s.doc.Close()
	s.engine.Close()

	if errors.Is(err, errDisconnected) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return errDisconnected
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", errDisconnected, err)
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("bridge: bad client frame", "err", err)
			_ = s.enqueue(ServerMessage{Type: TypeError, Message: "malformed message"})
			continue
		}
		s.handle(msg)
	}
}

func (s *Session) handle(msg ClientMessage) {
	switch msg.Type {
	case TypeChanged:
		if msg.Text == s.doc.PlainText() {
			// Echo of an edit we sent; the mirror already has it.
			return
		}
		if err := s.doc.SetText(msg.Text); err != nil {
			s.log.Debug("bridge: mirror update failed", "err", err)
		}
	case TypeEnable:
		if msg.Enabled == nil {
			_ = s.enqueue(ServerMessage{Type: TypeError, Message: "enable requires enabled"})
			return
		}
		s.engine.SetEnabled(*msg.Enabled)
		on := *msg.Enabled
		_ = s.enqueue(ServerMessage{Type: TypeState, Enabled: &on})
	default:
		_ = s.enqueue(ServerMessage{Type: TypeError, Message: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-s.out:
			data, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("bridge: encode %s: %w", m.Type, err)
			}
			wctx, cancel := context.WithTimeout(ctx, s.timeout)
			err = s.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return fmt.Errorf("%w: write: %w", errDisconnected, err)
			}
		}
	}
}

// stop unblocks pending enqueues once the writer is gone.
func (s *Session) stop() { s.doneOnce.Do(func() { close(s.done) }) }

// enqueue hands m to the writer. It blocks while the outbox is full and
// fails with [editor.ErrClosed] once the session has ended.
func (s *Session) enqueue(m ServerMessage) error {
	select {
	case <-s.done:
		return editor.ErrClosed
	default:
	}
	select {
	case s.out <- m:
		return nil
	case <-s.done:
		return editor.ErrClosed
	}
}
