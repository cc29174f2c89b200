package hardware

import (
	"errors"
	"testing"

	"github.com/warthog618/go-gpiocdev"

	"fluid-service/internal/config"
)

type fakeLine struct {
	value  int
	err    error
	closed int
}

func (f *fakeLine) Value() (int, error) { return f.value, f.err }
func (f *fakeLine) Close() error        { f.closed++; return nil }

func TestTouchdownInitialState(t *testing.T) {
	sw := newTouchdownSwitch(&fakeLine{value: 1}, nil)
	if !sw.Landed() {
		t.Error("Expected landed from initial line value")
	}

	sw = newTouchdownSwitch(&fakeLine{err: errors.New("busy")}, nil)
	if sw.Landed() {
		t.Error("Expected not landed when initial read fails")
	}
}

func TestTouchdownFollowsEdges(t *testing.T) {
	sw := newTouchdownSwitch(&fakeLine{}, nil)

	sw.handleEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventRisingEdge})
	if !sw.Landed() {
		t.Error("Expected landed after rising edge")
	}
	sw.handleEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventFallingEdge})
	if sw.Landed() {
		t.Error("Expected airborne after falling edge")
	}
}

func TestTouchdownCloseOnce(t *testing.T) {
	line := &fakeLine{}
	sw := newTouchdownSwitch(line, nil)
	sw.Close()
	sw.Close()
	if line.closed != 1 {
		t.Errorf("Expected line closed once, got %d", line.closed)
	}
}

func TestOpenTouchdownDisabled(t *testing.T) {
	if _, err := OpenTouchdownSwitch(config.GPIOConfig{Line: -1}, nil); err == nil {
		t.Error("Expected error for disabled line")
	}
}
