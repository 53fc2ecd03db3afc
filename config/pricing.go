package config

// PricingConfig holds model pricing settings and user overrides.
type PricingConfig struct {
	Currency     string                  `yaml:"currency" mapstructure:"currency"`
	CustomPrices map[string]ModelPricing `yaml:"custom_prices" mapstructure:"custom_prices"`
}

// ModelPricing is the per-1000-token cost of a model.
type ModelPricing struct {
	InputPricePer1K  float64 `yaml:"input_price_per_1k" mapstructure:"input_price_per_1k"`
	OutputPricePer1K float64 `yaml:"output_price_per_1k" mapstructure:"output_price_per_1k"`
}

// DefaultPricingConfig returns the default pricing configuration.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Currency:     "USD",
		CustomPrices: make(map[string]ModelPricing),
	}
}

// DefaultModelPricing contains hardcoded per-1K-token pricing for the models
// the simulator knows about. Users can override these in their config files.
var DefaultModelPricing = map[string]ModelPricing{
	"gpt-3.5-turbo": {
		InputPricePer1K:  0.0015,
		OutputPricePer1K: 0.002,
	},
	"gpt-4": {
		InputPricePer1K:  0.03,
		OutputPricePer1K: 0.06,
	},
	"gpt-4o": {
		InputPricePer1K:  0.0025,
		OutputPricePer1K: 0.01,
	},
	"gpt-4o-mini": {
		InputPricePer1K:  0.00015,
		OutputPricePer1K: 0.0006,
	},
	"claude-3-opus": {
		InputPricePer1K:  0.015,
		OutputPricePer1K: 0.075,
	},
	"claude-3-sonnet": {
		InputPricePer1K:  0.003,
		OutputPricePer1K: 0.015,
	},
	"claude-3-haiku": {
		InputPricePer1K:  0.00025,
		OutputPricePer1K: 0.00125,
	},
	"llama-3-70b": {
		InputPricePer1K:  0.00059,
		OutputPricePer1K: 0.00079,
	},
	"llama-3-8b": {
		InputPricePer1K:  0.00005,
		OutputPricePer1K: 0.00008,
	},
	"mistral-7b": {
		InputPricePer1K:  0.00025,
		OutputPricePer1K: 0.00025,
	},
}

// FallbackPricing applies to models not present in the pricing table.
var FallbackPricing = ModelPricing{
	InputPricePer1K:  0.0005,
	OutputPricePer1K: 0.0005,
}

// PricingFor resolves the pricing for a model, checking custom prices first,
// then the built-in table. The second return value reports whether the model
// was known; unknown models get the fallback pricing.
func (p PricingConfig) PricingFor(model string) (ModelPricing, bool) {
	if custom, ok := p.CustomPrices[model]; ok {
		return custom, true
	}
	if known, ok := DefaultModelPricing[model]; ok {
		return known, true
	}
	return FallbackPricing, false
}
