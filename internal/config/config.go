package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Executor ExecutorConfig `mapstructure:"executor" validate:"required"`
}

// ServerConfig contains process-level settings such as logging.
type ServerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// ExecutorConfig contains the retry, backoff and admission-control settings
// consumed by the operation executor. Delays are expressed in milliseconds
// so they can be written as plain numbers in config files and environment
// variables; the executor converts them to durations at construction.
type ExecutorConfig struct {
	// MaxRetries is the number of retry attempts allowed after the initial
	// attempt of an operation.
	MaxRetries int `mapstructure:"max_retries" validate:"min=0"`

	// BaseDelayMs is the backoff delay before the first retry.
	BaseDelayMs int `mapstructure:"base_delay_ms" validate:"required,gt=0"`

	// MaxDelayMs caps the backoff delay regardless of attempt number.
	MaxDelayMs int `mapstructure:"max_delay_ms" validate:"required,gtefield=BaseDelayMs"`

	// BackoffMultiplier is the factor applied to the delay between
	// successive retries.
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier" validate:"required,gte=1"`

	// TimeoutMs is the absolute deadline for an operation, measured from
	// submission rather than from the most recent attempt.
	TimeoutMs int `mapstructure:"timeout_ms" validate:"required,gt=0"`

	// MaxConcurrent is the admission-control ceiling: how many operations
	// may be in flight at once.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"required,gt=0"`
}
