package retry

import "time"

// Backoff computes the delay before the next attempt. Implementations are
// stateful and not safe for concurrent use.
type Backoff interface {
	// NextDelay returns the delay to sleep before the next attempt and
	// advances the internal schedule.
	NextDelay() time.Duration
}

// BackoffFactory constructs a fresh backoff schedule for one logical
// operation.
type BackoffFactory func() Backoff

type exponentialBackoff struct {
	current time.Duration
	max     time.Duration
}

// Exponential returns a factory for backoff schedules that start at initial
// and double on every call, clamped at max.
func Exponential(initial, max time.Duration) BackoffFactory {
	return func() Backoff {
		return &exponentialBackoff{current: initial, max: max}
	}
}

func (b *exponentialBackoff) NextDelay() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Config holds retry tuning knobs as loaded from configuration. A zero value
// falls back to the corresponding default.
type Config struct {
	MaxErrors    int           `yaml:"max_errors"`
	MaxElapsed   time.Duration `yaml:"max_elapsed"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxErrors:    5,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     30 * time.Second,
}

// PolicyFactory builds the retry policy factory described by the config.
// MaxElapsed, when set, takes precedence over the error-count limit.
func (c Config) PolicyFactory() PolicyFactory {
	if c.MaxElapsed > 0 {
		return LimitedTime(c.MaxElapsed)
	}
	max := c.MaxErrors
	if max <= 0 {
		max = DefaultConfig.MaxErrors
	}
	return LimitedErrorCount(max)
}

// BackoffFactory builds the backoff factory described by the config.
func (c Config) BackoffFactory() BackoffFactory {
	initial := c.InitialDelay
	if initial <= 0 {
		initial = DefaultConfig.InitialDelay
	}
	max := c.MaxDelay
	if max <= 0 {
		max = DefaultConfig.MaxDelay
	}
	return Exponential(initial, max)
}
