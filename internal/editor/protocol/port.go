// internal/editor/protocol/port.go
package protocol

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-editor/internal/editor/eventloop"
)

// ErrPortClosed is returned by Post once the port has been closed.
var ErrPortClosed = errors.New("port is closed")

// Handler receives messages delivered by a Port.
type Handler func(Message)

// Port is one direction of the sandbox channel. Post serializes the message
// and returns immediately; a single delivery goroutine decodes and hands
// messages to the listener in the order they were posted. Nothing is shared
// between sender and receiver except the encoded bytes.
type Port struct {
	logger *zap.Logger
	loop   *eventloop.Loop

	mu      sync.RWMutex
	handler Handler
}

// NewPort starts a port's delivery goroutine.
func NewPort(logger *zap.Logger, name string) *Port {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named(name)
	return &Port{
		logger: log,
		loop:   eventloop.New(log, "delivery"),
	}
}

// Listen installs the receiving handler, replacing any previous one.
func (p *Port) Listen(h Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// Post queues m for delivery. It never waits for the receiver.
func (p *Port) Post(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", m.Type, err)
	}
	err = p.loop.Enqueue(func() { p.deliver(data) })
	if errors.Is(err, eventloop.ErrClosed) {
		return ErrPortClosed
	}
	return err
}

// Flush waits until everything posted so far has been delivered.
func (p *Port) Flush() error {
	if err := p.loop.Sync(); err != nil {
		return ErrPortClosed
	}
	return nil
}

// Close stops delivery. Undelivered messages are dropped.
func (p *Port) Close() {
	p.loop.Close()
}

func (p *Port) deliver(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		p.logger.Warn("Dropping undecodable message.", zap.Error(err))
		return
	}

	p.mu.RLock()
	h := p.handler
	p.mu.RUnlock()

	if h == nil {
		p.logger.Debug("No listener; message dropped.", zap.String("type", string(msg.Type)))
		return
	}
	h(msg)
}

// Pipe is the pair of ports for one sandbox instance.
type Pipe struct {
	ToGuest *Port
	ToHost  *Port
}

// NewPipe creates both directions of a sandbox channel.
func NewPipe(logger *zap.Logger) *Pipe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipe{
		ToGuest: NewPort(logger, "to_guest"),
		ToHost:  NewPort(logger, "to_host"),
	}
}

// Close shuts both directions down.
func (p *Pipe) Close() {
	p.ToGuest.Close()
	p.ToHost.Close()
}
