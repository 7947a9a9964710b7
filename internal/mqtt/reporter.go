package mqtt

import (
	"github.com/rs/zerolog/log"
)

// Reporter publishes a status snapshot from a reactor timer.
type Reporter struct {
	pub      Publisher
	snapshot func(eventtime float64) Status
	interval float64
}

// NewReporter publishes snapshot every interval seconds.
func NewReporter(pub Publisher, interval float64, snapshot func(eventtime float64) Status) *Reporter {
	return &Reporter{pub: pub, snapshot: snapshot, interval: interval}
}

// Callback is the timer callback. Publish errors are logged; the next
// snapshot is still scheduled.
func (r *Reporter) Callback(eventtime float64) float64 {
	if err := r.pub.PublishStatus(r.snapshot(eventtime)); err != nil {
		log.Warn().Err(err).Msg("Failed to publish status")
	}
	return eventtime + r.interval
}
