package pricing

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultExchangeRate = 90.0
	costDecimals        = 4
)

// DefaultPrice applies to model ids missing from the catalog.
var DefaultPrice = Price{Input: 0.001, Output: 0.002}

// Price is USD per 1000 tokens.
type Price struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

type Model struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	Provider      string   `yaml:"provider" json:"provider"`
	PriceInput    float64  `yaml:"price_input" json:"price_input"`
	PriceOutput   float64  `yaml:"price_output" json:"price_output"`
	ContextLength int      `yaml:"context_length" json:"context_length"`
	Capabilities  []string `yaml:"capabilities" json:"capabilities"`
	Tier          string   `yaml:"tier" json:"tier"`
	// Hidden entries are priced but not advertised by the models listing.
	Hidden bool `yaml:"hidden" json:"-"`
}

func (m Model) Price() Price {
	return Price{Input: m.PriceInput, Output: m.PriceOutput}
}

// Quote is a cost breakdown in the billing currency.
type Quote struct {
	ModelID      string  `json:"model" yaml:"model"`
	InputTokens  int     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int     `json:"output_tokens" yaml:"output_tokens"`
	InputCost    float64 `json:"input_cost" yaml:"input_cost"`
	OutputCost   float64 `json:"output_cost" yaml:"output_cost"`
	TotalCost    float64 `json:"total_cost" yaml:"total_cost"`
	Fallback     bool    `json:"fallback" yaml:"fallback"`
}

type Catalog struct {
	models       []Model
	index        map[string]int
	fallback     Price
	exchangeRate float64
}

type Options struct {
	ExchangeRate float64
	Fallback     *Price
	Models       []Model
}

func NewCatalog(opts Options) *Catalog {
	rate := opts.ExchangeRate
	if rate <= 0 {
		rate = DefaultExchangeRate
	}
	fallback := DefaultPrice
	if opts.Fallback != nil {
		fallback = *opts.Fallback
	}
	c := &Catalog{
		index:        make(map[string]int, len(opts.Models)),
		fallback:     fallback,
		exchangeRate: rate,
	}
	for _, m := range opts.Models {
		c.put(m)
	}
	return c
}

// Default returns the built-in catalog at the given exchange rate.
func Default(exchangeRate float64) *Catalog {
	return NewCatalog(Options{ExchangeRate: exchangeRate, Models: builtinModels()})
}

func (c *Catalog) put(m Model) {
	id := normalizeID(m.ID)
	if id == "" {
		return
	}
	m.ID = strings.TrimSpace(m.ID)
	if idx, ok := c.index[id]; ok {
		c.models[idx] = m
		return
	}
	c.index[id] = len(c.models)
	c.models = append(c.models, m)
}

func (c *Catalog) Lookup(modelID string) (Model, bool) {
	idx, ok := c.index[normalizeID(modelID)]
	if !ok {
		return Model{}, false
	}
	return c.models[idx], true
}

// Models lists advertised entries in catalog order.
func (c *Catalog) Models() []Model {
	out := make([]Model, 0, len(c.models))
	for _, m := range c.models {
		if !m.Hidden {
			out = append(out, m)
		}
	}
	return out
}

func (c *Catalog) ExchangeRate() float64 {
	return c.exchangeRate
}

// Cost converts token usage into the billing currency, rounded to 4 decimals.
func (c *Catalog) Cost(modelID string, tokensIn, tokensOut int) float64 {
	return c.Quote(modelID, tokensIn, tokensOut).TotalCost
}

func (c *Catalog) Quote(modelID string, tokensIn, tokensOut int) Quote {
	price := c.fallback
	m, ok := c.Lookup(modelID)
	if ok {
		price = m.Price()
	}
	tokensIn = max(tokensIn, 0)
	tokensOut = max(tokensOut, 0)

	inputUSD := float64(tokensIn) / 1000 * price.Input
	outputUSD := float64(tokensOut) / 1000 * price.Output
	return Quote{
		ModelID:      modelID,
		InputTokens:  tokensIn,
		OutputTokens: tokensOut,
		InputCost:    Round(inputUSD*c.exchangeRate, costDecimals),
		OutputCost:   Round(outputUSD*c.exchangeRate, costDecimals),
		TotalCost:    Round((inputUSD+outputUSD)*c.exchangeRate, costDecimals),
		Fallback:     !ok,
	}
}

func Round(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}

type fileFormat struct {
	ExchangeRate float64 `yaml:"exchange_rate"`
	Default      *Price  `yaml:"default"`
	Models       []Model `yaml:"models"`
}

// LoadFile overlays a YAML pricing file on top of base. Entries with a known id replace
// the built-in price, new ids are appended.
func LoadFile(path string, base *Catalog) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}
	var parsed fileFormat
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse pricing file %s: %w", path, err)
	}

	opts := Options{ExchangeRate: base.exchangeRate, Models: append([]Model(nil), base.models...)}
	fallback := base.fallback
	opts.Fallback = &fallback
	if parsed.ExchangeRate > 0 {
		opts.ExchangeRate = parsed.ExchangeRate
	}
	if parsed.Default != nil {
		opts.Fallback = parsed.Default
	}
	for i, m := range parsed.Models {
		if strings.TrimSpace(m.ID) == "" {
			return nil, fmt.Errorf("pricing file %s: model #%d has no id", path, i+1)
		}
		if m.PriceInput < 0 || m.PriceOutput < 0 {
			return nil, fmt.Errorf("pricing file %s: model %s has a negative price", path, m.ID)
		}
	}
	opts.Models = append(opts.Models, parsed.Models...)
	return NewCatalog(opts), nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
