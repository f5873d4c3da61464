package usage

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

//go:embed config/pricing.yaml
var fallbackPricingYAML []byte

// CostPrecision is the number of decimal places kept when storing costs.
const CostPrecision = 6

// Pricing is the USD price of one token, prompt and completion side.
type Pricing struct {
	PromptPerToken     float64
	CompletionPerToken float64
}

// CatalogFetcher provides the raw provider model catalog.
type CatalogFetcher interface {
	ListModels(ctx context.Context) ([]byte, error)
}

type fallbackEntry struct {
	Prompt     float64 `yaml:"prompt"`
	Completion float64 `yaml:"completion"`
}

type fallbackFile struct {
	Models map[string]fallbackEntry `yaml:"models"`
}

// cachedPricing is one refresh generation: the fetch time plus the per-model
// prices read from the catalog. Replaced wholesale on refresh.
type cachedPricing struct {
	fetchedAt time.Time
	byID      map[string]Pricing
}

// PriceTable resolves per-token prices for model ids. Catalog prices are
// cached with a TTL; when the catalog is unavailable or has no entry, a
// small static table of common models answers instead. Stale entries keep
// being served while a refresh fails.
type PriceTable struct {
	fetcher  CatalogFetcher
	ttl      time.Duration
	logger   *slog.Logger
	fallback map[string]Pricing

	mu    sync.Mutex
	cache *cachedPricing
}

// NewPriceTable builds a price table. fetcher may be nil, in which case only
// the static fallback answers.
func NewPriceTable(fetcher CatalogFetcher, ttl time.Duration, logger *slog.Logger) (*PriceTable, error) {
	var ff fallbackFile
	if err := yaml.Unmarshal(fallbackPricingYAML, &ff); err != nil {
		return nil, fmt.Errorf("parse fallback pricing: %w", err)
	}

	fallback := make(map[string]Pricing, len(ff.Models))
	for id, e := range ff.Models {
		fallback[id] = Pricing{
			PromptPerToken:     e.Prompt / 1_000_000,
			CompletionPerToken: e.Completion / 1_000_000,
		}
	}

	return &PriceTable{
		fetcher:  fetcher,
		ttl:      ttl,
		logger:   logger,
		fallback: fallback,
	}, nil
}

// NormalizeModelID strips routing suffixes from a model id. Catalog ids
// sometimes carry ":free"/":beta" or "@provider" variants that price the
// same as the base model.
func NormalizeModelID(modelID string) string {
	t := strings.TrimSpace(modelID)
	if t == "" {
		return ""
	}
	if i := strings.IndexByte(t, '@'); i >= 0 {
		t = t[:i]
	}
	if i := strings.IndexByte(t, ':'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

// Lookup returns the per-token pricing for a model, or nil when neither the
// catalog nor the fallback table knows it.
func (t *PriceTable) Lookup(ctx context.Context, modelID string) *Pricing {
	id := strings.TrimSpace(modelID)
	if id == "" {
		return nil
	}

	cache := t.refreshIfNeeded(ctx)
	base := NormalizeModelID(id)

	if cache != nil {
		if p, ok := cache.byID[id]; ok {
			return &p
		}
		if p, ok := cache.byID[base]; ok {
			return &p
		}
	}

	if p, ok := t.fallback[id]; ok {
		return &p
	}
	if p, ok := t.fallback[base]; ok {
		return &p
	}
	return nil
}

// CalculateCost computes the USD cost of a completion, rounded to the
// storage precision. Unknown models cost zero.
func (t *PriceTable) CalculateCost(ctx context.Context, modelID string, promptTokens, completionTokens int) float64 {
	p := t.Lookup(ctx, modelID)
	if p == nil {
		return 0
	}

	cost := float64(promptTokens)*p.PromptPerToken + float64(completionTokens)*p.CompletionPerToken
	return roundTo(cost, CostPrecision)
}

// refreshIfNeeded returns the current cache generation, refreshing from the
// catalog when the TTL has lapsed. A failed refresh keeps the previous
// generation so stale prices are served instead of none.
func (t *PriceTable) refreshIfNeeded(ctx context.Context) *cachedPricing {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cache != nil && time.Since(t.cache.fetchedAt) < t.ttl {
		return t.cache
	}
	if t.fetcher == nil {
		return t.cache
	}

	body, err := t.fetcher.ListModels(ctx)
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("model pricing refresh failed", "error", err)
		}
		if t.cache != nil {
			// Push the next attempt out a full TTL rather than retrying
			// on every lookup against a down catalog.
			t.cache.fetchedAt = time.Now()
		}
		return t.cache
	}

	byID := make(map[string]Pricing)
	gjson.GetBytes(body, "data").ForEach(func(_, m gjson.Result) bool {
		id := strings.TrimSpace(m.Get("id").String())
		if id == "" {
			return true
		}

		// Catalog pricing fields are USD per token, as string numbers.
		prompt, err1 := parsePrice(m.Get("pricing.prompt"))
		completion, err2 := parsePrice(m.Get("pricing.completion"))
		if err1 != nil || err2 != nil {
			return true
		}

		byID[id] = Pricing{PromptPerToken: prompt, CompletionPerToken: completion}
		return true
	})

	t.cache = &cachedPricing{fetchedAt: time.Now(), byID: byID}
	return t.cache
}

func parsePrice(v gjson.Result) (float64, error) {
	switch v.Type {
	case gjson.Number:
		return v.Num, nil
	case gjson.String:
		return strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
	default:
		return 0, fmt.Errorf("missing price")
	}
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
