package realtime

import (
	"math"
	"time"
)

const (
	DefaultReconnectDelay = 100 * time.Millisecond
	DefaultMaxRetries     = 10
)

// ReconnectDelayStrategy decides how long to wait before retry number
// retryCount (zero based) and when to give up. It is only called from the
// client's executor.
type ReconnectDelayStrategy interface {
	GetConnectWaitDuration(retryCount int) (time.Duration, error)
	Reset()
}

// FixedDelayStrategy waits the same delay before every retry.
type FixedDelayStrategy struct {
	Delay      time.Duration
	MaxRetries int
}

// NewFixedDelayStrategy returns a new FixedDelayStrategy.
func NewFixedDelayStrategy(delay time.Duration, maxRetries int) *FixedDelayStrategy {
	if delay < 0 {
		delay = 0
	}
	return &FixedDelayStrategy{Delay: delay, MaxRetries: maxRetries}
}

// GetConnectWaitDuration returns the delay, or RetriesExhaustedError once
// retryCount reaches MaxRetries.
func (strategy *FixedDelayStrategy) GetConnectWaitDuration(retryCount int) (time.Duration, error) {
	if strategy == nil {
		return 0, nil
	}
	if retryCount >= strategy.MaxRetries {
		return 0, NewError(RetriesExhaustedError, "max retries reached")
	}
	return strategy.Delay, nil
}

func (strategy *FixedDelayStrategy) Reset() {}

// ExponentialDelayStrategy waits BaseDelay * Factor^retryCount, bounded by
// MaxDelay when it is positive.
type ExponentialDelayStrategy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Factor     float64
	MaxRetries int
}

// NewExponentialDelayStrategy returns the default 2^n * baseDelay strategy.
func NewExponentialDelayStrategy(baseDelay time.Duration, maxRetries int) *ExponentialDelayStrategy {
	if baseDelay < 0 {
		baseDelay = 0
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ExponentialDelayStrategy{
		BaseDelay:  baseDelay,
		Factor:     2,
		MaxRetries: maxRetries,
	}
}

// GetConnectWaitDuration returns the current connect wait duration value.
func (strategy *ExponentialDelayStrategy) GetConnectWaitDuration(retryCount int) (time.Duration, error) {
	if strategy == nil {
		return 0, nil
	}
	if retryCount >= strategy.MaxRetries {
		return 0, NewError(RetriesExhaustedError, "max retries reached")
	}

	factor := strategy.Factor
	if factor < 1 {
		factor = 2
	}
	delayFloat := float64(strategy.BaseDelay) * math.Pow(factor, float64(retryCount))
	if strategy.MaxDelay > 0 && delayFloat > float64(strategy.MaxDelay) {
		delayFloat = float64(strategy.MaxDelay)
	}
	if delayFloat > math.MaxInt64 {
		delayFloat = math.MaxInt64
	}
	delay := time.Duration(delayFloat)
	if delay < 0 {
		delay = 0
	}
	return delay, nil
}

// Reset is a no-op: the retry counter lives in the transport.
func (strategy *ExponentialDelayStrategy) Reset() {}
