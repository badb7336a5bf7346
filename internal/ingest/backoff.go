package ingest

import "time"

// defaultReconnectDelays is the wait schedule between reconnect attempts.
var defaultReconnectDelays = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// backoffSchedule walks an ordered list of delays, saturating at the last
// entry for repeated failures. The counter advances independently of any
// timer and rewinds only via reset, i.e. only on a successful reconnect.
type backoffSchedule struct {
	delays  []time.Duration
	attempt int
}

func newBackoffSchedule(delays []time.Duration) *backoffSchedule {
	if len(delays) == 0 {
		delays = defaultReconnectDelays
	}
	return &backoffSchedule{delays: delays}
}

// nextDelay returns the delay before the next attempt and advances the
// counter.
func (b *backoffSchedule) nextDelay() time.Duration {
	i := b.attempt
	if i >= len(b.delays) {
		i = len(b.delays) - 1
	}
	b.attempt++
	return b.delays[i]
}

// reset rewinds the schedule to the first delay.
func (b *backoffSchedule) reset() {
	b.attempt = 0
}
