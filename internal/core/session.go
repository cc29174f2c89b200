package core

import (
	"sync"

	"fluid-service/internal/config"
	"fluid-service/internal/fsm"
	"fluid-service/internal/types"
)

// Session is the process-scoped context: configuration plus the state graph
// and status channel, each created on first use and shared afterwards.
type Session struct {
	config    config.Config
	publisher StatusPublisher

	graphOnce sync.Once
	graph     *fsm.StateGraph

	statusOnce sync.Once
	status     *StatusChannel
}

func NewSession(cfg config.Config, publisher StatusPublisher) *Session {
	return &Session{config: cfg, publisher: publisher}
}

func (s *Session) Config() config.Config {
	return s.config
}

// Graph returns the state graph with the built-in edges registered. Custom
// operations add their edges before the flight system starts.
func (s *Session) Graph() *fsm.StateGraph {
	s.graphOnce.Do(func() {
		s.graph = fsm.NewStateGraph()
		fsm.RegisterDefaultTransitions(s.graph)
	})
	return s.graph
}

func (s *Session) Status() *StatusChannel {
	s.statusOnce.Do(func() {
		s.status = &StatusChannel{publisher: s.publisher}
	})
	return s.status
}

// StatusChannel is the single-writer status sink. The control loop is the
// only writer; Last may be read from anywhere.
type StatusChannel struct {
	publisher StatusPublisher

	mu   sync.RWMutex
	last types.Status
}

func (c *StatusChannel) Publish(st types.Status) error {
	c.mu.Lock()
	c.last = st
	c.mu.Unlock()

	if c.publisher == nil {
		return nil
	}
	return c.publisher.PublishStatus(st)
}

func (c *StatusChannel) Last() types.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
