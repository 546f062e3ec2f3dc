package risk

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Params пороги и коэффициенты проверок риска.
// Проценты (…Percent) сравниваются с pnl% с учётом плеча, доли (…Fraction, …Distance) используются как множители цены.
type Params struct {
	EmergencyStopPercent float64 `yaml:"emergency_stop_percent"`

	StopSlippage         float64 `yaml:"stop_slippage"`
	VolatilityMultiplier float64 `yaml:"volatility_multiplier"`
	MaxVolatilityBuffer  float64 `yaml:"max_volatility_buffer"`
	MinVolatilityBuffer  float64 `yaml:"min_volatility_buffer"`

	TakeProfitFractions [3]float64 `yaml:"take_profit_fractions"`

	TrailingActivationPercent float64 `yaml:"trailing_activation_percent"`
	TrailingDistance          float64 `yaml:"trailing_distance"`
	TrailingVolatilityFactor  float64 `yaml:"trailing_volatility_factor"`
	TrailingEntryFloor        float64 `yaml:"trailing_entry_floor"`

	BreakevenActivationPercent float64 `yaml:"breakeven_activation_percent"`
	BreakevenOffset            float64 `yaml:"breakeven_offset"`

	PartialProfitPercent  float64 `yaml:"partial_profit_percent"`
	PartialProfitFraction float64 `yaml:"partial_profit_fraction"`

	MaxTradeDuration time.Duration `yaml:"max_trade_duration"`

	VolatilityAdvisory float64       `yaml:"volatility_advisory"`
	VolatilityHigh     float64       `yaml:"volatility_high"`
	VolatilityCacheTTL time.Duration `yaml:"volatility_cache_ttl"`

	ConfidenceBase       float64 `yaml:"confidence_base"`
	ConfidenceMaxBonus   float64 `yaml:"confidence_max_bonus"`
	ConfidenceMaxPenalty float64 `yaml:"confidence_max_penalty"`

	LongTradeAge time.Duration `yaml:"long_trade_age"`
}

// DefaultParams значения по умолчанию
func DefaultParams() Params {
	return Params{
		EmergencyStopPercent:       15,
		StopSlippage:               0.001,
		VolatilityMultiplier:       1.5,
		MaxVolatilityBuffer:        0.03,
		MinVolatilityBuffer:        0.005,
		TakeProfitFractions:        [3]float64{0.5, 0.3, 0.2},
		TrailingActivationPercent:  5,
		TrailingDistance:           0.02,
		TrailingVolatilityFactor:   0.8,
		TrailingEntryFloor:         0.01,
		BreakevenActivationPercent: 3,
		BreakevenOffset:            0.001,
		PartialProfitPercent:       10,
		PartialProfitFraction:      0.25,
		MaxTradeDuration:           168 * time.Hour,
		VolatilityAdvisory:         0.05,
		VolatilityHigh:             0.08,
		VolatilityCacheTTL:         10 * time.Minute,
		ConfidenceBase:             50,
		ConfidenceMaxBonus:         30,
		ConfidenceMaxPenalty:       20,
		LongTradeAge:               48 * time.Hour,
	}
}

// LoadParams накладывает профиль из YAML на значения по умолчанию.
// Пустой путь означает значения по умолчанию.
func LoadParams(path, profile string) (Params, error) {
	params := DefaultParams()
	if path == "" {
		return params, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("failed to read risk params: %w", err)
	}

	var file struct {
		RiskProfiles map[string]yaml.Node `yaml:"risk_profiles"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return params, fmt.Errorf("failed to parse risk params: %w", err)
	}

	if profile == "" {
		profile = "moderate"
	}
	node, ok := file.RiskProfiles[profile]
	if !ok {
		return params, fmt.Errorf("risk profile %s not found", profile)
	}
	// Decode поверх дефолтов: отсутствующие ключи сохраняют значения по умолчанию
	if err := node.Decode(&params); err != nil {
		return params, fmt.Errorf("failed to decode risk profile %s: %w", profile, err)
	}

	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

// Validate проверяет диапазоны параметров
func (p Params) Validate() error {
	fractions := map[string]float64{
		"stop_slippage":           p.StopSlippage,
		"max_volatility_buffer":   p.MaxVolatilityBuffer,
		"min_volatility_buffer":   p.MinVolatilityBuffer,
		"trailing_distance":       p.TrailingDistance,
		"breakeven_offset":        p.BreakevenOffset,
		"partial_profit_fraction": p.PartialProfitFraction,
	}
	for name, v := range fractions {
		if v <= 0 || v > 0.5 {
			return fmt.Errorf("%s must be in (0, 0.5], got %v", name, v)
		}
	}
	if p.MinVolatilityBuffer > p.MaxVolatilityBuffer {
		return fmt.Errorf("min_volatility_buffer %v exceeds max_volatility_buffer %v", p.MinVolatilityBuffer, p.MaxVolatilityBuffer)
	}
	for i, f := range p.TakeProfitFractions {
		if f <= 0 || f > 1 {
			return fmt.Errorf("take_profit_fractions[%d] must be in (0, 1], got %v", i, f)
		}
	}

	thresholds := map[string]float64{
		"emergency_stop_percent":       p.EmergencyStopPercent,
		"trailing_activation_percent":  p.TrailingActivationPercent,
		"breakeven_activation_percent": p.BreakevenActivationPercent,
		"partial_profit_percent":       p.PartialProfitPercent,
		"volatility_advisory":          p.VolatilityAdvisory,
		"volatility_high":              p.VolatilityHigh,
	}
	for name, v := range thresholds {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, v)
		}
	}
	if p.MaxTradeDuration <= 0 {
		return fmt.Errorf("max_trade_duration must be positive")
	}
	return nil
}
