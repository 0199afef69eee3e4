package recovery

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can use "500ms"-style
// strings.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// RetryConfig tunes retry planning and execution.
type RetryConfig struct {
	// MaxRetries bounds attempts per retry action.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// BaseDelay is the wait before the first retry.
	BaseDelay Duration `yaml:"base_delay" json:"base_delay"`

	// MaxDelay caps the grown backoff delay.
	MaxDelay Duration `yaml:"max_delay" json:"max_delay"`

	// BackoffMultiplier grows the delay between attempts.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// ThresholdsConfig maps classification confidence onto coarse levels
// for reporting. Must satisfy Low <= Medium <= High.
type ThresholdsConfig struct {
	High   float64 `yaml:"high" json:"high"`
	Medium float64 `yaml:"medium" json:"medium"`
	Low    float64 `yaml:"low" json:"low"`
}

// RecommendationConfig tunes alternative-tool suggestions.
type RecommendationConfig struct {
	// ConfidenceThreshold is the minimum confidence for an alternative
	// to appear in a plan.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
}

// Config holds engine settings. Zero values fall back to the defaults
// applied by New; DefaultConfig returns them explicitly.
type Config struct {
	// EnableAnalytics turns event emission on.
	EnableAnalytics bool `yaml:"enable_analytics" json:"enable_analytics"`

	Retry          RetryConfig          `yaml:"retry" json:"retry"`
	Thresholds     ThresholdsConfig     `yaml:"thresholds" json:"thresholds"`
	Recommendation RecommendationConfig `yaml:"recommendation" json:"recommendation"`

	// PlanTimeout bounds one GenerateRecoveryPlan call.
	PlanTimeout Duration `yaml:"plan_timeout" json:"plan_timeout"`

	// AttemptTimeout bounds each individual action execution attempt.
	AttemptTimeout Duration `yaml:"attempt_timeout" json:"attempt_timeout"`

	// CacheSize is the explanation cache capacity. Zero means default,
	// negative disables.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// DefaultConfig returns the balanced defaults used when fields are left
// zero.
func DefaultConfig() Config {
	return Config{
		EnableAnalytics: true,
		Retry: RetryConfig{
			MaxRetries:        3,
			BaseDelay:         Duration(time.Second),
			MaxDelay:          Duration(30 * time.Second),
			BackoffMultiplier: 2.0,
		},
		Thresholds: ThresholdsConfig{
			High:   0.8,
			Medium: 0.5,
			Low:    0.2,
		},
		Recommendation: RecommendationConfig{
			ConfidenceThreshold: 0.6,
		},
		PlanTimeout:    Duration(5 * time.Second),
		AttemptTimeout: Duration(30 * time.Second),
	}
}

// ProductionConfig favors conservative retries and a tight plan budget.
func ProductionConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry.MaxRetries = 3
	cfg.Retry.BaseDelay = Duration(2 * time.Second)
	cfg.Retry.MaxDelay = Duration(time.Minute)
	cfg.Recommendation.ConfidenceThreshold = 0.7
	cfg.PlanTimeout = Duration(2 * time.Second)
	return cfg
}

// DevelopmentConfig favors fast feedback: analytics off, short delays,
// permissive recommendations, generous timeouts for debugging.
func DevelopmentConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableAnalytics = false
	cfg.Retry.MaxRetries = 5
	cfg.Retry.BaseDelay = Duration(100 * time.Millisecond)
	cfg.Retry.MaxDelay = Duration(2 * time.Second)
	cfg.Recommendation.ConfidenceThreshold = 0.4
	cfg.PlanTimeout = Duration(30 * time.Second)
	return cfg
}

// LoadConfig reads a YAML config file over the defaults, so a partial
// file only overrides what it names.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot honor.
func (c Config) Validate() error {
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: retry.max_retries must not be negative", ErrInvalidConfig)
	}
	if c.Retry.BackoffMultiplier != 0 && c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: retry.backoff_multiplier must be at least 1", ErrInvalidConfig)
	}
	if c.Retry.MaxDelay != 0 && c.Retry.BaseDelay > c.Retry.MaxDelay {
		return fmt.Errorf("%w: retry.base_delay exceeds retry.max_delay", ErrInvalidConfig)
	}
	if c.Recommendation.ConfidenceThreshold < 0 || c.Recommendation.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: recommendation.confidence_threshold must be within [0, 1]", ErrInvalidConfig)
	}
	t := c.Thresholds
	if t != (ThresholdsConfig{}) {
		if t.Low > t.Medium || t.Medium > t.High {
			return fmt.Errorf("%w: thresholds must satisfy low <= medium <= high", ErrInvalidConfig)
		}
		if t.Low < 0 || t.High > 1 {
			return fmt.Errorf("%w: thresholds must be within [0, 1]", ErrInvalidConfig)
		}
	}
	if c.PlanTimeout < 0 || c.AttemptTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = def.Retry.MaxRetries
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = def.Retry.MaxDelay
	}
	if c.Retry.BackoffMultiplier == 0 {
		c.Retry.BackoffMultiplier = def.Retry.BackoffMultiplier
	}
	if c.Thresholds == (ThresholdsConfig{}) {
		c.Thresholds = def.Thresholds
	}
	if c.Recommendation.ConfidenceThreshold == 0 {
		c.Recommendation.ConfidenceThreshold = def.Recommendation.ConfidenceThreshold
	}
	if c.PlanTimeout == 0 {
		c.PlanTimeout = def.PlanTimeout
	}
	if c.AttemptTimeout == 0 {
		c.AttemptTimeout = def.AttemptTimeout
	}
	return c
}
