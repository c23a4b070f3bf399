// Package hub fans events out to every live connection of a navigation
// session.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSendTimeout bounds one send to one connection.
	DefaultSendTimeout = 5 * time.Second
	// DefaultMaxParallel bounds concurrent sends of one broadcast.
	DefaultMaxParallel = 32
)

// ErrClosed is returned by Attach after Close.
var ErrClosed = errors.New("hub: closed")

// Conn is one observer connection.
type Conn interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Config tunes broadcast delivery.
type Config struct {
	SendTimeout time.Duration
	MaxParallel int
}

// Manager tracks the live connections of one session and broadcasts to
// them. A connection whose send fails is removed and closed; the broadcast
// still reaches every other member.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	conns  map[string]Conn
	closed bool

	pending sync.WaitGroup
}

// NewManager creates an empty Manager.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[string]Conn),
	}
}

// Attach adds c to the membership set.
func (m *Manager) Attach(c Conn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.conns[c.ID()] = c
	m.logger.Debug("connection attached", zap.String("conn_id", c.ID()), zap.Int("members", len(m.conns)))
	return nil
}

// Detach removes c. It reports whether c was still a member; detaching an
// unknown connection is a no-op.
func (m *Manager) Detach(c Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remove(c)
}

// remove deletes c if it is the registered connection for its id. Caller
// holds mu.
func (m *Manager) remove(c Conn) bool {
	cur, ok := m.conns[c.ID()]
	if !ok || cur != c {
		return false
	}
	delete(m.conns, c.ID())
	m.logger.Debug("connection detached", zap.String("conn_id", c.ID()), zap.Int("members", len(m.conns)))
	return true
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Broadcast serializes v once and delivers it to every current member.
func (m *Manager) Broadcast(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	m.BroadcastRaw(ctx, payload)
	return nil
}

// BroadcastRaw delivers an already serialized payload to every current
// member. Members whose send fails or times out are removed and closed.
func (m *Manager) BroadcastRaw(ctx context.Context, payload []byte) {
	members := m.snapshot()
	if len(members) == 0 {
		return
	}

	var (
		failedMu sync.Mutex
		failed   []Conn
	)

	// Sends never return an error to the group, so one slow or broken
	// member cannot cancel delivery to the others.
	g := new(errgroup.Group)
	g.SetLimit(m.cfg.MaxParallel)
	for _, c := range members {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
			defer cancel()
			if err := c.Send(sendCtx, payload); err != nil {
				m.logger.Warn("dropping connection after failed send",
					zap.String("conn_id", c.ID()),
					zap.Error(err),
				)
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == 0 {
		return
	}
	m.mu.Lock()
	for _, c := range failed {
		m.remove(c)
	}
	m.mu.Unlock()
	for _, c := range failed {
		_ = c.Close()
	}
}

// Publish broadcasts v in the background. Location relays use it; their
// relative order across senders is not guaranteed.
func (m *Manager) Publish(v any) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return
	}
	m.pending.Add(1)
	m.mu.RUnlock()

	go func() {
		defer m.pending.Done()
		if err := m.Broadcast(context.Background(), v); err != nil {
			m.logger.Error("background broadcast failed", zap.Error(err))
		}
	}()
}

// Close waits for background broadcasts, then closes and forgets every
// connection.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.pending.Wait()

	m.mu.Lock()
	members := make([]Conn, 0, len(m.conns))
	for id, c := range m.conns {
		members = append(members, c)
		delete(m.conns, id)
	}
	m.mu.Unlock()

	for _, c := range members {
		_ = c.Close()
	}
}

func (m *Manager) snapshot() []Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := make([]Conn, 0, len(m.conns))
	for _, c := range m.conns {
		members = append(members, c)
	}
	return members
}
