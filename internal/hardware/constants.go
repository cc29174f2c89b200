package hardware

import "time"

const (
	Consumer = "fluid-service"

	// TouchdownDebounce filters contact bounce on the landing gear switch.
	TouchdownDebounce = 20 * time.Millisecond

	// RealtimeNice is the scheduling priority requested for the control process.
	RealtimeNice = -10
)
