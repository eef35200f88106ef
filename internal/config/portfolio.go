package config

import (
	"fmt"
	"math"
	"os"

	"github.com/aristath/capitol/internal/domain"
	"gopkg.in/yaml.v3"
)

// Portfolio defaults applied when the YAML file omits a field
const (
	DefaultMaxPositionPct   = 0.10
	DefaultMinPositionValue = 100.0
	DefaultMinTradeValue    = 1.0
)

// PortfolioConfig is the configuration surface consumed by the blender and rebalancer
type PortfolioConfig struct {
	// TotalEquity overrides live account equity when positive
	TotalEquity      float64                           `yaml:"total_equity"`
	StrategyWeights  map[string]float64                `yaml:"strategy_weights"`
	MergeStrategy    domain.MergeStrategy              `yaml:"merge_strategy"`
	MaxPositionPct   float64                           `yaml:"max_position_pct"`
	MinPositionValue float64                           `yaml:"min_position_value"`
	MinTradeValue    float64                           `yaml:"min_trade_value"`
	EnableShorts     bool                              `yaml:"enable_shorts"`
	StrategyParams   map[string]map[string]interface{} `yaml:"strategy_params"`
}

// DefaultPortfolio returns the built-in allocation used when no file exists
func DefaultPortfolio() *PortfolioConfig {
	return &PortfolioConfig{
		StrategyWeights: map[string]float64{
			"congressional": 0.5,
			"insider":       0.3,
			"lobbying":      0.2,
		},
		MergeStrategy:    domain.MergeAdditive,
		MaxPositionPct:   DefaultMaxPositionPct,
		MinPositionValue: DefaultMinPositionValue,
		MinTradeValue:    DefaultMinTradeValue,
		StrategyParams:   map[string]map[string]interface{}{},
	}
}

// LoadPortfolio reads and validates a YAML portfolio file.
// A missing file yields DefaultPortfolio.
func LoadPortfolio(path string) (*PortfolioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPortfolio(), nil
		}
		return nil, fmt.Errorf("failed to read portfolio config: %w", err)
	}
	return ParsePortfolio(data)
}

// ParsePortfolio decodes YAML bytes, applies defaults and validates
func ParsePortfolio(data []byte) (*PortfolioConfig, error) {
	cfg := &PortfolioConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse portfolio config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *PortfolioConfig) applyDefaults() {
	if p.MergeStrategy == "" {
		p.MergeStrategy = domain.MergeAdditive
	}
	if p.MaxPositionPct == 0 {
		p.MaxPositionPct = DefaultMaxPositionPct
	}
	if p.MinTradeValue == 0 {
		p.MinTradeValue = DefaultMinTradeValue
	}
	if p.StrategyParams == nil {
		p.StrategyParams = map[string]map[string]interface{}{}
	}
}

// Validate enforces input validation rules. Nothing is silently defaulted here.
func (p *PortfolioConfig) Validate() error {
	if len(p.StrategyWeights) == 0 {
		return domain.ErrEmptyWeights
	}
	for name, w := range p.StrategyWeights {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("strategy %s: weight must be non-negative, got %v", name, w)
		}
	}
	if _, err := domain.ParseMergeStrategy(string(p.MergeStrategy)); err != nil {
		return err
	}
	if !(p.MaxPositionPct > 0 && p.MaxPositionPct <= 1) {
		return fmt.Errorf("%w: got %v", domain.ErrInvalidCapFraction, p.MaxPositionPct)
	}
	if p.MinPositionValue < 0 {
		return fmt.Errorf("min_position_value must be non-negative, got %v", p.MinPositionValue)
	}
	if p.TotalEquity < 0 {
		return fmt.Errorf("total_equity must be non-negative, got %v", p.TotalEquity)
	}
	return nil
}

// Params returns the parameter bag for a strategy (never nil)
func (p *PortfolioConfig) Params(strategy string) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range p.StrategyParams[strategy] {
		out[k] = v
	}
	return out
}
