package services

import (
	"math"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/client/models"
)

// RetryPolicy decides when a failed submission is requeued automatically.
type RetryPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts caps automatic retries; past it only a manual requeue
	// brings a submission back.
	MaxAttempts    int
	JitterFraction float64 // 0.0 to 1.0
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: 30 * time.Second,
		MaxBackoff:     30 * time.Minute,
		MaxAttempts:    8,
		JitterFraction: 0.25,
	}
}

// Backoff is the wait after the given number of attempts, with jitter drawn
// from rnd in [0, 1).
func (p RetryPolicy) Backoff(attempts int, rnd float64) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	base := float64(p.InitialBackoff) * math.Pow(2, float64(attempts-1))
	if base > float64(p.MaxBackoff) {
		base = float64(p.MaxBackoff)
	}
	jitter := base * p.JitterFraction * (rnd*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// Due reports whether the failed submission q should be requeued at now.
// force skips the backoff wait but not the attempt cap.
func (p RetryPolicy) Due(q *models.QueuedSubmission, now time.Time, force bool, rnd float64) bool {
	if q.Status != models.QueueStatusFailed || q.RetryCount >= p.MaxAttempts {
		return false
	}
	return force || !now.Before(q.UpdatedAt.Add(p.Backoff(q.RetryCount, rnd)))
}
