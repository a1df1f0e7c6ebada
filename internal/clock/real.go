package clock

import (
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Real returns a Clock backed by the system clocks. Monotonic reads
// CLOCK_BOOTTIME so readings stay comparable across daemon restarts within
// one boot and keep advancing during suspend.
func Real() Clock {
	return &realClock{start: time.Now()}
}

type realClock struct {
	start time.Time
}

func (*realClock) Now() time.Time { return time.Now() }

func (c *realClock) Monotonic() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return time.Since(c.start)
	}
	return time.Duration(ts.Nano())
}

func (*realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (*realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

const bootIDPath = "/proc/sys/kernel/random/boot_id"

// BootID returns the kernel's random boot identifier. Monotonic readings are
// only comparable between equal boot IDs. An empty string means unknown.
func BootID() string {
	data, err := os.ReadFile(bootIDPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
