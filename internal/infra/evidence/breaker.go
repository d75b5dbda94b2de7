package evidence

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/propdesk/turnover/internal/domain"
)

// Breaker fails fast once the wrapped backend keeps erroring, so a dead
// bucket does not hold workers for the full request timeout.
type Breaker struct {
	next domain.EvidenceUploader
	cb   *gobreaker.CircuitBreaker
}

// BreakerSettings tunes the circuit.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// NewBreaker wraps next in a circuit breaker.
func NewBreaker(next domain.EvidenceUploader, s BreakerSettings, log *zap.Logger) *Breaker {
	if s.Name == "" {
		s.Name = "evidence"
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("evidence circuit state changed",
				zap.String("name", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
	return &Breaker{next: next, cb: cb}
}

// Upload implements domain.EvidenceUploader.
func (b *Breaker) Upload(ctx context.Context, workflowID string, step domain.StepNumber, f domain.EvidenceFile) (string, error) {
	url, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Upload(ctx, workflowID, step, f)
	})
	if err != nil {
		return "", err
	}
	return url.(string), nil
}

// State exposes the circuit state for health reporting.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }
