package tokens

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelPricing holds per-million-token prices in USD.
type ModelPricing struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// PricingTable maps model identifiers to prices. Lookup is by longest
// matching prefix, so dated model suffixes resolve to their family.
type PricingTable map[string]ModelPricing

// DefaultPricing returns the built-in pricing table. Prices move;
// treat this as a default, overridable via a pricing YAML file.
func DefaultPricing() PricingTable {
	return PricingTable{
		"anthropic/claude-3-5-sonnet": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
		"anthropic/claude-3-opus":     {InputPerMillion: 15.00, OutputPerMillion: 75.00},
		"anthropic/claude-3-haiku":    {InputPerMillion: 0.25, OutputPerMillion: 1.25},
		"openai/gpt-4o":               {InputPerMillion: 2.50, OutputPerMillion: 10.00},
		"openai/gpt-4o-mini":          {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"openai/gpt-4-turbo":          {InputPerMillion: 10.00, OutputPerMillion: 30.00},
		"openai/gpt-3.5-turbo":        {InputPerMillion: 0.50, OutputPerMillion: 1.50},
	}
}

// pricingFile is the YAML shape of a pricing override file.
type pricingFile struct {
	Models map[string]ModelPricing `yaml:"models"`
}

// LoadPricing returns the default table merged with the override file
// at path, if any. File entries win over built-ins.
func LoadPricing(path string) (PricingTable, error) {
	table := DefaultPricing()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}
	var file pricingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pricing file %s: %w", path, err)
	}
	for model, pricing := range file.Models {
		table[model] = pricing
	}
	return table, nil
}

// lookup finds the pricing entry whose key is the longest prefix of
// model. Returns false when no entry matches — an unknown model costs
// 0.0 by contract, not an error.
func (t PricingTable) lookup(model string) (ModelPricing, bool) {
	// gpt-4o must not shadow gpt-4o-mini: scan longest keys first.
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	for _, k := range keys {
		if strings.HasPrefix(model, k) {
			return t[k], true
		}
	}
	return ModelPricing{}, false
}
