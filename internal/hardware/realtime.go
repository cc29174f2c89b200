package hardware

import (
	"fmt"

	"golang.org/x/sys/unix"

	"fluid-service/internal/logger"
)

// PrepareRealtime locks the process memory and raises its scheduling
// priority so page faults and other processes do not stretch the control
// period. Both steps need privileges; the caller decides whether a failure
// is fatal.
func PrepareRealtime(l *logger.Logger) error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, RealtimeNice); err != nil {
		return fmt.Errorf("setpriority %d: %w", RealtimeNice, err)
	}
	l.Infof("Locked memory and set priority %d", RealtimeNice)
	return nil
}
