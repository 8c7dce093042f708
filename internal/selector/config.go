package selector

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"solana-round-selector/internal/domain"
)

// EngineVersion tags every audit produced by this package.
const EngineVersion = "selector/1.0.0"

// RelaxTopNByVolume is the only relaxation rule: widen the strict pool with the
// top-N unfiltered candidates by 5-minute volume.
const RelaxTopNByVolume = "top_n_by_volume"

// weightSumTolerance bounds |Σ factor weights - 1|.
const weightSumTolerance = 1e-6

// ErrWeightsSum is returned when factor weights do not sum to 1.
var ErrWeightsSum = errors.New("factor weights must sum to 1")

var validate = validator.New()

// Caps normalize raw features into [0,1] as min(x/cap, 1).
type Caps struct {
	Volume5m        float64 `json:"volume_5m_sol" mapstructure:"volume_5m_sol" yaml:"volume_5m_sol" validate:"gt=0"`
	UniqueTraders5m float64 `json:"unique_traders_5m" mapstructure:"unique_traders_5m" yaml:"unique_traders_5m" validate:"gt=0"`
	Trades5m        float64 `json:"trades_5m" mapstructure:"trades_5m" yaml:"trades_5m" validate:"gt=0"`
	Acceleration    float64 `json:"acceleration" mapstructure:"acceleration" yaml:"acceleration" validate:"gt=0"`
	Volatility      float64 `json:"volatility" mapstructure:"volatility" yaml:"volatility" validate:"gt=0"`
}

// Weights combine the normalized features into one score. They must sum to 1.
type Weights struct {
	Volume        float64 `json:"volume" mapstructure:"volume" yaml:"volume" validate:"gte=0,lte=1"`
	UniqueTraders float64 `json:"unique_traders" mapstructure:"unique_traders" yaml:"unique_traders" validate:"gte=0,lte=1"`
	Trades        float64 `json:"trades" mapstructure:"trades" yaml:"trades" validate:"gte=0,lte=1"`
	Acceleration  float64 `json:"acceleration" mapstructure:"acceleration" yaml:"acceleration" validate:"gte=0,lte=1"`
	Volatility    float64 `json:"volatility" mapstructure:"volatility" yaml:"volatility" validate:"gte=0,lte=1"`
}

// Sum returns the total of all factor weights.
func (w Weights) Sum() float64 {
	return w.Volume + w.UniqueTraders + w.Trades + w.Acceleration + w.Volatility
}

// Config controls filtering, relaxation, scoring and weighting.
// It is immutable after New.
type Config struct {
	Filters domain.FilterSet `json:"filters" mapstructure:"filters" yaml:"filters"`

	// MinPoolSize triggers relaxation when the strict pool is smaller.
	MinPoolSize int `json:"min_pool_size" mapstructure:"min_pool_size" yaml:"min_pool_size" validate:"gte=1"`
	// RelaxTopN is the number of unfiltered candidates considered by relaxation.
	RelaxTopN int `json:"relax_top_n" mapstructure:"relax_top_n" yaml:"relax_top_n" validate:"gte=1"`

	Caps    Caps    `json:"caps" mapstructure:"caps" yaml:"caps"`
	Weights Weights `json:"weights" mapstructure:"weights" yaml:"weights"`

	// WindowRatio is how many short windows fit in the long window (60m / 5m).
	WindowRatio float64 `json:"window_ratio" mapstructure:"window_ratio" yaml:"window_ratio" validate:"gt=0"`
	// Temperature of the softmax. Lower sharpens, higher flattens.
	Temperature float64 `json:"temperature" mapstructure:"temperature" yaml:"temperature" validate:"gt=0"`

	// ExclusionWindowRounds is how many of the most recent selected rounds keep their pick ineligible.
	// Only committed picks count; voided rounds and rejected draws do not. 0 bans every past pick.
	ExclusionWindowRounds int `json:"exclusion_window_rounds" mapstructure:"exclusion_window_rounds" yaml:"exclusion_window_rounds" validate:"gte=0"`

	EngineVersion string `json:"engine_version" mapstructure:"engine_version" yaml:"engine_version" validate:"required"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Filters: domain.FilterSet{
			MinAgeMinutes:      5,
			MaxAgeHours:        24,
			MinVolume5m:        10,
			MinTrades5m:        50,
			MinUniqueTraders5m: 25,
		},
		MinPoolSize: 3,
		RelaxTopN:   10,
		Caps: Caps{
			Volume5m:        100,
			UniqueTraders5m: 100,
			Trades5m:        300,
			Acceleration:    3,
			Volatility:      0.5,
		},
		Weights: Weights{
			Volume:        0.30,
			UniqueTraders: 0.25,
			Trades:        0.15,
			Acceleration:  0.20,
			Volatility:    0.10,
		},
		WindowRatio:   12,
		Temperature:   0.25,
		EngineVersion: EngineVersion,
	}
}

// Validate checks field constraints and the weight sum.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("selector config validation failed: %w", err)
	}
	if sum := c.Weights.Sum(); math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: got %.6f", ErrWeightsSum, sum)
	}
	if c.Filters.MinAgeMinutes > c.Filters.MaxAgeHours*60 {
		return fmt.Errorf("selector config validation failed: min age %.1fm exceeds max age %.1fh",
			c.Filters.MinAgeMinutes, c.Filters.MaxAgeHours)
	}
	return nil
}
