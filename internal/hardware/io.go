package hardware

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"

	"fluid-service/internal/config"
	"fluid-service/internal/logger"
)

type inputLine interface {
	Value() (int, error)
	Close() error
}

// TouchdownSwitch reports ground contact from a GPIO input. The state is
// cached from edge events so Landed never blocks the control loop.
type TouchdownSwitch struct {
	logger *logger.Logger
	line   inputLine
	active atomic.Bool
	once   sync.Once
}

func OpenTouchdownSwitch(cfg config.GPIOConfig, l *logger.Logger) (*TouchdownSwitch, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("touchdown switch disabled")
	}

	sw := &TouchdownSwitch{logger: l}
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithConsumer(Consumer),
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(TouchdownDebounce),
		gpiocdev.WithEventHandler(sw.handleEvent),
	}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(cfg.Chip, cfg.Line, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to request GPIO line %s:%d: %w", cfg.Chip, cfg.Line, err)
	}
	sw.line = line

	if err := sw.refresh(); err != nil {
		l.Warnf("Failed to read initial touchdown state: %v", err)
	}
	l.Infof("Configured touchdown switch: chip=%s, line=%d, active_low=%v", cfg.Chip, cfg.Line, cfg.ActiveLow)
	return sw, nil
}

func newTouchdownSwitch(line inputLine, l *logger.Logger) *TouchdownSwitch {
	sw := &TouchdownSwitch{logger: l, line: line}
	if err := sw.refresh(); err != nil {
		l.Warnf("Failed to read initial touchdown state: %v", err)
	}
	return sw
}

func (s *TouchdownSwitch) refresh() error {
	v, err := s.line.Value()
	if err != nil {
		return err
	}
	s.active.Store(v == 1)
	return nil
}

func (s *TouchdownSwitch) handleEvent(evt gpiocdev.LineEvent) {
	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		s.active.Store(true)
		s.logger.Debugf("Touchdown contact")
	case gpiocdev.LineEventFallingEdge:
		s.active.Store(false)
		s.logger.Debugf("Touchdown released")
	}
}

// Landed reports whether the switch is closed.
func (s *TouchdownSwitch) Landed() bool {
	return s.active.Load()
}

func (s *TouchdownSwitch) Close() error {
	var err error
	s.once.Do(func() {
		err = s.line.Close()
		s.logger.Infof("Closed touchdown switch")
	})
	return err
}
