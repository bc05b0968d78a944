// Package pricing estimates the cost of agent token usage.
package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/srebench/internal/model"
)

// ModelPricing is the price per 1K tokens.
type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps provider and model to prices.
type Table struct {
	Providers map[string]map[string]ModelPricing
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	for provider, models := range providers {
		for name, p := range models {
			if p.Input < 0 || p.Output < 0 {
				return nil, fmt.Errorf("pricing %s/%s: prices must not be negative", provider, name)
			}
		}
	}
	return &Table{Providers: providers}, nil
}

func (t *Table) lookup(provider, modelName string) (ModelPricing, bool) {
	if t == nil || t.Providers == nil {
		return ModelPricing{}, false
	}
	p, ok := t.Providers[provider][modelName]
	return p, ok
}

// Cost calculates total cost for a request. Prices are per 1K tokens.
func (t *Table) Cost(provider, modelName string, inputTokens, outputTokens int) float64 {
	p, ok := t.lookup(provider, modelName)
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1000.0)*p.Input + (float64(outputTokens)/1000.0)*p.Output
}

// Estimate prices u, reporting whether the model is in the table.
func (t *Table) Estimate(provider, modelName string, u model.Usage) (float64, bool) {
	if _, ok := t.lookup(provider, modelName); !ok {
		return 0, false
	}
	return t.Cost(provider, modelName, u.InputTokens, u.OutputTokens), true
}
