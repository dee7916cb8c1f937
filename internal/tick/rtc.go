// Package tick implements the harness's real-time clock strobe: a picosecond countdown that
// fires at a fixed 32.768kHz rate regardless of the simulated core's own clock speed, the way
// a real-time counter peripheral would.
package tick

// picosecondsPerSecond is used to derive the countdown reload value from the RTC's fixed
// 32.768kHz rate.
const picosecondsPerSecond = 1_000_000_000_000

// rtcHz is the RTC's fixed strobe frequency.
const rtcHz = 32768

// RTC counts down picoseconds-per-simulated-clock until it has accumulated one period of a
// 32.768kHz clock, then strobes and reloads.
type RTC struct {
	remainingPs int64
	psPerClock  int64
}

// NewRTC creates an RTC driven by a core clocked at psPerClock picoseconds per cycle.
func NewRTC(psPerClock int64) *RTC {
	r := &RTC{psPerClock: psPerClock}
	r.reload()

	return r
}

func (r *RTC) reload() {
	r.remainingPs = picosecondsPerSecond / rtcHz
}

// Tick advances the RTC by one simulated clock and reports whether it strobed.
func (r *RTC) Tick() bool {
	r.remainingPs -= r.psPerClock

	if r.remainingPs > 0 {
		return false
	}

	r.reload()

	return true
}
