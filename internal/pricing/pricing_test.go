package pricing

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestConvert_RoundTrip(t *testing.T) {
	amount := 12.34
	php := Convert(amount, "USD", "PHP")
	back := Convert(php, "PHP", "USD")
	if !almostEqual(back, amount) {
		t.Errorf("round trip drifted: %v -> %v -> %v", amount, php, back)
	}
	if !almostEqual(php, amount*56.5) {
		t.Errorf("expected PHP rate 56.5, got %v for %v USD", php, amount)
	}
}

func TestConvert_SameCurrency(t *testing.T) {
	if got := Convert(5.0, "USD", "USD"); got != 5.0 {
		t.Errorf("same-currency conversion changed amount: %v", got)
	}
}

func TestPriceFor_MarkupApplied(t *testing.T) {
	s := NewService("USD")

	// boyong-mini maps to claude-3-haiku: input 0.00025, output 0.00125.
	// Pro plan carries a 40% markup.
	rate, custom := s.PriceFor("inno-ai-boyong-mini", "pro", "USD")
	if custom {
		t.Fatal("no custom price installed, expected markup path")
	}
	if !almostEqual(rate.Input, 0.00025*1.4) {
		t.Errorf("input rate: got %v", rate.Input)
	}
	if !almostEqual(rate.Output, 0.00125*1.4) {
		t.Errorf("output rate: got %v", rate.Output)
	}
}

func TestPriceFor_CustomOverrideWins(t *testing.T) {
	s := NewService("USD")
	s.SetCustomPrice("inno-ai-boyong-4.5", Rate{Input: 0.02, Output: 0.08})

	rate, custom := s.PriceFor("inno-ai-boyong-4.5", "free", "USD")
	if !custom {
		t.Fatal("expected custom price to take precedence")
	}
	// The free plan's 100% markup must not apply to overrides.
	if !almostEqual(rate.Input, 0.02) || !almostEqual(rate.Output, 0.08) {
		t.Errorf("override ignored markup exemption: %+v", rate)
	}

	s.RemoveCustomPrice("inno-ai-boyong-4.5")
	_, custom = s.PriceFor("inno-ai-boyong-4.5", "free", "USD")
	if custom {
		t.Error("expected markup path after override removal")
	}
}

func TestPriceFor_UnknownModelUsesFallback(t *testing.T) {
	s := NewService("USD")
	rate, _ := s.PriceFor("no-such-model", "starter", "USD")
	if !almostEqual(rate.Input, 0.005*1.5) {
		t.Errorf("expected fallback input rate with starter markup, got %v", rate.Input)
	}
}

func TestCalculateCost_Per1K(t *testing.T) {
	s := NewService("USD")
	s.SetCustomPrice("fixed", Rate{Input: 1.0, Output: 2.0})

	cb := s.CalculateCost("fixed", 500, 250, "starter", "USD")
	if !almostEqual(cb.InputCost, 0.5) {
		t.Errorf("input cost: got %v", cb.InputCost)
	}
	if !almostEqual(cb.OutputCost, 0.5) {
		t.Errorf("output cost: got %v", cb.OutputCost)
	}
	if !almostEqual(cb.TotalCost, 1.0) {
		t.Errorf("total cost: got %v", cb.TotalCost)
	}
}

func TestGetPlan_UnknownFallsBackToFree(t *testing.T) {
	p := GetPlan("platinum")
	if p.ID != "free" {
		t.Errorf("expected free fallback, got %q", p.ID)
	}
}

func TestSplitAllowance(t *testing.T) {
	cases := []struct {
		name                  string
		amount, current, limit int64
		within, overage       int64
	}{
		{"all within", 100, 0, 1000, 100, 0},
		{"straddles limit", 100, 950, 1000, 50, 50},
		{"already over", 100, 1200, 1000, 0, 100},
		{"exactly at limit", 100, 1000, 1000, 0, 100},
		{"unlimited", 100, 999999, Unlimited, 100, 0},
		{"zero limit", 100, 0, 0, 0, 100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			within, overage := SplitAllowance(c.amount, c.current, c.limit)
			if within != c.within || overage != c.overage {
				t.Errorf("got within=%d overage=%d, want within=%d overage=%d",
					within, overage, c.within, c.overage)
			}
			if within+overage != c.amount {
				t.Errorf("split does not sum to amount: %d + %d != %d", within, overage, c.amount)
			}
		})
	}
}

func TestOverageCost(t *testing.T) {
	// Starter: tokens 0.003/1K, images 0.04 each.
	got, err := OverageCost("starter", "tokens", 2000)
	if err != nil {
		t.Fatalf("OverageCost failed: %v", err)
	}
	if !almostEqual(got, 0.006) {
		t.Errorf("token overage: got %v", got)
	}

	got, err = OverageCost("starter", "images", 3)
	if err != nil {
		t.Fatalf("OverageCost failed: %v", err)
	}
	if !almostEqual(got, 0.12) {
		t.Errorf("image overage: got %v", got)
	}

	if _, err := OverageCost("starter", "gpu_hours", 1); err == nil {
		t.Error("expected error for unknown dimension")
	}

	got, _ = OverageCost("starter", "tokens", 0)
	if got != 0 {
		t.Errorf("zero overage should cost nothing, got %v", got)
	}
}
