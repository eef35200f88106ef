package strategies

import (
	"fmt"
	"strconv"
)

// ParamAllocatedEquity is merged into every strategy's parameters by the registry
const ParamAllocatedEquity = "allocated_equity"

// Parameter names understood by the signal strategies
const (
	ParamLookbackDays = "lookback_days"
	ParamMinStrength  = "min_strength"
	ParamSizing       = "sizing"
	ParamTopN         = "top_n"
)

// Params is the free-form parameter bag passed to a strategy.
// Values come from YAML so numbers may arrive as int or float64.
type Params map[string]interface{}

// Float returns a numeric parameter or the default
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %s: %w", key, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("parameter %s: unsupported type %T", key, v)
}

// Int returns an integer parameter or the default
func (p Params) Int(key string, def int) (int, error) {
	f, err := p.Float(key, float64(def))
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("parameter %s: %v is not a whole number", key, f)
	}
	return int(f), nil
}

// String returns a string parameter or the default
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s: expected string, got %T", key, v)
	}
	return s, nil
}

// with returns a copy of p with key set to value
func (p Params) with(key string, value interface{}) Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[key] = value
	return out
}
