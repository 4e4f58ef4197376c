// internal/server/client.go
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-editor/internal/editor/session"
)

var (
	errRateLimited  = errors.New("rate limit exceeded")
	errUnknownOp    = errors.New("unknown op")
	errMissingField = errors.New("missing field")
	errSlowConsumer = errors.New("client is not reading its pushes")
)

// client owns one websocket and the session behind it.
type client struct {
	srv     *Server
	logger  *zap.Logger
	conn    *websocket.Conn
	session *session.Session
	limiter *rate.Limiter

	// Outbound frames, already encoded.
	send chan []byte

	mu     sync.Mutex
	cancel context.CancelCauseFunc
}

func newClient(s *Server, conn *websocket.Conn, sess *session.Session) *client {
	return &client{
		srv:     s,
		logger:  s.logger.With(zap.String("session_id", sess.ID())),
		conn:    conn,
		session: sess,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst),
		send:    make(chan []byte, s.cfg.SendBuffer),
	}
}

// serve runs both pumps until either fails or ctx ends, then releases the
// session and the socket.
func (c *client) serve(ctx context.Context) {
	ctx, cancel := context.WithCancelCause(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel(nil)

	unsubscribe := c.session.Subscribe(c.push)
	defer func() {
		unsubscribe()
		c.session.Close()
		_ = c.conn.Close()
	}()

	c.logger.Info("Websocket client connected.")
	c.enqueue(ServerFrame{Type: FrameScale, Session: c.session.ID(), Scale: c.session.Controller().Scale()})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A clean close from the peer ends the write pump too.
		defer cancel(nil)
		return c.readPump(gctx)
	})
	g.Go(func() error { return c.writePump(gctx) })
	err := g.Wait()
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		err = cause
	}
	if err != nil {
		c.logger.Warn("Websocket client dropped.", zap.Error(err))
		return
	}
	c.logger.Info("Websocket client disconnected.")
}

// push forwards a session update. It runs on session delivery goroutines and
// never blocks.
func (c *client) push(u session.Update) {
	c.enqueue(frameFor(u))
}

func (c *client) enqueue(f ServerFrame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.logger.Error("Failed to encode frame.", zap.String("type", string(f.Type)), zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel(errSlowConsumer)
		}
	}
}

func (c *client) readPump(ctx context.Context) error {
	c.conn.SetReadLimit(c.srv.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				ctx.Err() == nil {
				return fmt.Errorf("reading frame: %w", err)
			}
			return nil
		}

		var f ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.enqueue(errorFrame("", fmt.Errorf("decoding frame: %w", err)))
			continue
		}
		if !c.limiter.Allow() {
			c.enqueue(errorFrame(f.ID, errRateLimited))
			continue
		}
		if err := c.handle(ctx, f); err != nil {
			c.logger.Debug("Client op failed.", zap.String("op", string(f.Op)), zap.Error(err))
			c.enqueue(errorFrame(f.ID, err))
		}
	}
}

func (c *client) handle(ctx context.Context, f ClientFrame) error {
	s := c.session
	switch f.Op {
	case OpLoad:
		return s.Load(f.Document)
	case OpCommand:
		if f.Command == nil {
			return fmt.Errorf("%w: command", errMissingField)
		}
		return s.Execute(*f.Command)
	case OpEvent:
		if f.Event == nil {
			return fmt.Errorf("%w: event", errMissingField)
		}
		return s.Input(*f.Event)
	case OpUndo:
		return s.Undo()
	case OpRedo:
		return s.Redo()
	case OpScale:
		s.SetScale(f.Scale)
		return nil
	case OpMount:
		s.Mount(f.Width, f.Height)
		return nil
	case OpPanel:
		return c.panel(f)
	case OpCommit:
		wctx, cancel := context.WithTimeout(ctx, c.srv.cfg.WriteWait)
		defer cancel()
		return s.Commit(wctx)
	case OpHTML:
		wctx, cancel := context.WithTimeout(ctx, c.srv.cfg.WriteWait)
		defer cancel()
		doc, err := s.HTML(wctx)
		if err != nil {
			return err
		}
		c.enqueue(ServerFrame{Type: FrameHTML, ID: f.ID, Document: doc})
		return nil
	}
	return fmt.Errorf("%w: %q", errUnknownOp, f.Op)
}

func (c *client) panel(f ClientFrame) error {
	p := c.session.Panel()
	switch f.Button {
	case "":
		if f.Field == "" {
			return fmt.Errorf("%w: field or button", errMissingField)
		}
		return p.Edit(f.Field, f.Value)
	case ButtonLayerUp:
		return p.LayerUp()
	case ButtonLayerDown:
		return p.LayerDown()
	case ButtonDuplicate:
		return p.Duplicate()
	case ButtonDelete:
		return p.Delete()
	}
	return fmt.Errorf("%w: button %q", errUnknownOp, f.Button)
}

func (c *client) writePump(ctx context.Context) error {
	pingPeriod := c.srv.cfg.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// Unblocks the read pump.
		_ = c.conn.Close()
	}()
	wait := c.srv.cfg.WriteWait

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wait))
			return nil
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("writing frame: %w", err)
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait)); err != nil {
				return fmt.Errorf("writing ping: %w", err)
			}
		}
	}
}
