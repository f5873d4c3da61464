package usage

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type fakeFetcher struct {
	body  []byte
	err   error
	calls int
}

func (f *fakeFetcher) ListModels(ctx context.Context) ([]byte, error) {
	f.calls++
	return f.body, f.err
}

func TestNormalizeModelID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"openai/gpt-4o-mini", "openai/gpt-4o-mini"},
		{"openai/gpt-4o-mini:free", "openai/gpt-4o-mini"},
		{"openai/gpt-4o-mini@openai", "openai/gpt-4o-mini"},
		{"  openai/gpt-4o  ", "openai/gpt-4o"},
		{"meta-llama/llama-3.1-8b-instruct:beta", "meta-llama/llama-3.1-8b-instruct"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeModelID(tt.in); got != tt.want {
			t.Errorf("NormalizeModelID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPriceTableFallback(t *testing.T) {
	table, err := NewPriceTable(nil, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewPriceTable: %v", err)
	}

	p := table.Lookup(context.Background(), "openai/gpt-4o-mini")
	if p == nil {
		t.Fatal("expected fallback pricing for gpt-4o-mini")
	}
	if math.Abs(p.PromptPerToken-0.15/1_000_000) > 1e-15 {
		t.Errorf("prompt price = %v, want %v", p.PromptPerToken, 0.15/1_000_000)
	}

	// Suffixed ids resolve to the base model.
	if table.Lookup(context.Background(), "openai/gpt-4o-mini:free") == nil {
		t.Error("suffixed id should resolve via normalization")
	}

	if table.Lookup(context.Background(), "unknown/model") != nil {
		t.Error("unknown model should have no pricing")
	}
}

func TestPriceTableCatalog(t *testing.T) {
	catalog := []byte(`{"data":[
		{"id":"vendor/model-a","pricing":{"prompt":"0.000001","completion":"0.000002"}},
		{"id":"vendor/model-b","pricing":{"prompt":"bogus","completion":"0.1"}},
		{"id":"","pricing":{"prompt":"1","completion":"1"}}
	]}`)
	fetcher := &fakeFetcher{body: catalog}

	table, err := NewPriceTable(fetcher, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewPriceTable: %v", err)
	}

	p := table.Lookup(context.Background(), "vendor/model-a")
	if p == nil {
		t.Fatal("expected catalog pricing for model-a")
	}
	if p.PromptPerToken != 0.000001 || p.CompletionPerToken != 0.000002 {
		t.Errorf("pricing = %+v", *p)
	}

	// Entries with unparsable prices are skipped.
	if table.Lookup(context.Background(), "vendor/model-b") != nil {
		t.Error("model with bogus price should be absent")
	}

	// Cache hit inside the TTL: no second fetch.
	table.Lookup(context.Background(), "vendor/model-a")
	if fetcher.calls != 1 {
		t.Errorf("fetcher called %d times, want 1", fetcher.calls)
	}
}

func TestPriceTableStaleOnRefreshFailure(t *testing.T) {
	fetcher := &fakeFetcher{body: []byte(`{"data":[
		{"id":"vendor/model-a","pricing":{"prompt":"0.000003","completion":"0.000003"}}
	]}`)}

	table, err := NewPriceTable(fetcher, time.Nanosecond, nil)
	if err != nil {
		t.Fatalf("NewPriceTable: %v", err)
	}

	if table.Lookup(context.Background(), "vendor/model-a") == nil {
		t.Fatal("expected catalog pricing")
	}

	// TTL has lapsed and the catalog is now down; the stale entry survives.
	fetcher.err = errors.New("catalog down")
	fetcher.body = nil
	time.Sleep(time.Millisecond)

	if table.Lookup(context.Background(), "vendor/model-a") == nil {
		t.Error("stale pricing should be served when refresh fails")
	}
}

func TestCalculateCost(t *testing.T) {
	table, err := NewPriceTable(nil, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewPriceTable: %v", err)
	}
	ctx := context.Background()

	// gpt-4o-mini: 0.15/1M prompt, 0.60/1M completion.
	// 1000 prompt + 500 completion = 0.00015 + 0.0003 = 0.00045.
	got := table.CalculateCost(ctx, "openai/gpt-4o-mini", 1000, 500)
	if got != 0.00045 {
		t.Errorf("cost = %v, want 0.00045", got)
	}

	// Deterministic for fixed input.
	if again := table.CalculateCost(ctx, "openai/gpt-4o-mini", 1000, 500); again != got {
		t.Errorf("cost changed between calls: %v vs %v", again, got)
	}

	if table.CalculateCost(ctx, "unknown/model", 1000, 500) != 0 {
		t.Error("unknown model should cost 0")
	}

	// Rounded to 6 decimal places.
	tiny := table.CalculateCost(ctx, "meta-llama/llama-3.1-8b-instruct", 1, 1)
	if tiny != 0 {
		t.Errorf("sub-precision cost = %v, want 0 after rounding", tiny)
	}
}
