package domain

// FilterSet holds eligibility thresholds applied before scoring.
type FilterSet struct {
	MinAgeMinutes      float64 `json:"min_age_minutes" mapstructure:"min_age_minutes" yaml:"min_age_minutes" validate:"gte=0"`
	MaxAgeHours        float64 `json:"max_age_hours" mapstructure:"max_age_hours" yaml:"max_age_hours" validate:"gt=0"`
	MinVolume5m        float64 `json:"min_volume_5m_sol" mapstructure:"min_volume_5m_sol" yaml:"min_volume_5m_sol" validate:"gte=0"`
	MinTrades5m        int     `json:"min_trades_5m" mapstructure:"min_trades_5m" yaml:"min_trades_5m" validate:"gte=0"`
	MinUniqueTraders5m int     `json:"min_unique_traders_5m" mapstructure:"min_unique_traders_5m" yaml:"min_unique_traders_5m" validate:"gte=0"`
}
