package dispatcher

import (
	"fmt"
	"math"
	"time"

	"github.com/mist-hpc/mist/internal/config"
)

const (
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

// Strategy computes the delay before retry attempt n (1-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// NewBackoff returns the retry strategy named by cfg.RetryBackoff.
func NewBackoff(cfg config.Dispatcher) (Strategy, error) {
	switch cfg.RetryBackoff {
	case "", BackoffConstant:
		return NewConstant(cfg.RetryDelay), nil
	case BackoffExponential:
		return NewExponential(cfg.RetryDelay, cfg.RetryMaxDelay), nil
	default:
		return nil, fmt.Errorf("unknown retry backoff %q", cfg.RetryBackoff)
	}
}

// Constant always waits the same interval.
type Constant struct {
	Interval time.Duration
}

func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay every attempt, capped at Max. Without a Max the
// delay stops growing at the largest time.Duration.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	if e.Initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	limit := e.Max
	if limit <= 0 {
		limit = time.Duration(math.MaxInt64)
	}

	d := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if d >= float64(limit) {
		return limit
	}
	return time.Duration(d)
}
