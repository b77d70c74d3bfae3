package agent

import (
	"testing"
	"time"

	"cartstorm/internal/domain"
	"cartstorm/internal/shopapi"
)

func uniformAffinity(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func testDescriptor(id string, frequency float64) *domain.AgentDescriptor {
	return &domain.AgentDescriptor{
		AgentID:           id,
		PriceSensitivity:  0.5,
		ShoppingFrequency: frequency,
		HourAffinity:      uniformAffinity(24),
		DayAffinity:       uniformAffinity(7),
		BudgetCents:       5000,
	}
}

// Identical (agentID, cycleIndex, seed) must produce identical
// Deciding transitions across runs.
func TestSeededPolicy_DecideDeterministic(t *testing.T) {
	simTime := time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)

	for _, seed := range []int64{0, 1, 42, 987654321} {
		first := make(map[int64]bool)
		p1 := &SeededPolicy{Seed: seed}
		for cycle := int64(0); cycle < 50; cycle++ {
			first[cycle] = p1.ShouldShop(testDescriptor("agent-7", 0.5), cycle, simTime)
		}

		p2 := &SeededPolicy{Seed: seed}
		for cycle := int64(0); cycle < 50; cycle++ {
			got := p2.ShouldShop(testDescriptor("agent-7", 0.5), cycle, simTime)
			if got != first[cycle] {
				t.Fatalf("seed %d cycle %d: decision differs across runs", seed, cycle)
			}
		}
	}
}

func TestSeededPolicy_DecisionVariesBySeed(t *testing.T) {
	simTime := time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)
	d := testDescriptor("agent-7", 0.5)

	same := true
	for cycle := int64(0); cycle < 100 && same; cycle++ {
		a := (&SeededPolicy{Seed: 1}).ShouldShop(d, cycle, simTime)
		b := (&SeededPolicy{Seed: 2}).ShouldShop(d, cycle, simTime)
		if a != b {
			same = false
		}
	}
	if same {
		t.Error("100 cycles produced identical decisions for different seeds")
	}
}

func TestSeededPolicy_FrequencyExtremes(t *testing.T) {
	p := &SeededPolicy{Seed: 9}
	simTime := time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)

	for cycle := int64(0); cycle < 200; cycle++ {
		if p.ShouldShop(testDescriptor("never", 0), cycle, simTime) {
			t.Fatal("frequency 0 agent decided to shop")
		}
		if !p.ShouldShop(testDescriptor("always", 1), cycle, simTime) {
			t.Fatal("frequency 1 agent with uniform affinity skipped")
		}
	}
}

func TestSeededPolicy_AffinityModulation(t *testing.T) {
	p := &SeededPolicy{Seed: 9}

	d := testDescriptor("night-owl", 1)
	for h := range d.HourAffinity {
		d.HourAffinity[h] = 0
	}
	d.HourAffinity[22] = 1

	afternoon := time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)
	lateNight := time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC)

	for cycle := int64(0); cycle < 50; cycle++ {
		if p.ShouldShop(d, cycle, afternoon) {
			t.Fatal("agent shopped outside its hour affinity window")
		}
		if !p.ShouldShop(d, cycle, lateNight) {
			t.Fatal("full-affinity hour with frequency 1 skipped")
		}
	}
}

func TestSeededPolicy_PickItemsRespectsBudget(t *testing.T) {
	p := &SeededPolicy{Seed: 3}
	d := testDescriptor("tight", 1)
	d.BudgetCents = 500
	d.PriceSensitivity = 0

	products := []shopapi.Product{
		{SKU: "a", PriceCents: 400},
		{SKU: "b", PriceCents: 400},
		{SKU: "c", PriceCents: 90},
	}

	picks := p.PickItems(d, 1, products)
	var total int64
	for _, pick := range picks {
		total += pick.PriceCents * int64(pick.Qty)
	}
	if total > d.BudgetCents {
		t.Errorf("cart total %d exceeds budget %d", total, d.BudgetCents)
	}
}

func TestSeededPolicy_AbandonOverBudget(t *testing.T) {
	p := &SeededPolicy{Seed: 3}
	d := testDescriptor("strict", 1)

	if !p.ShouldAbandon(d, 1, d.BudgetCents+1) {
		t.Error("cart above budget was not abandoned")
	}
}

func TestSeededPolicy_PickCouponBestDiscount(t *testing.T) {
	p := &SeededPolicy{Seed: 3}
	coupons := []shopapi.Coupon{
		{Code: "SMALL", DiscountPct: 5},
		{Code: "BIG", DiscountPct: 20},
		{Code: "MID", DiscountPct: 10},
	}
	if got := p.PickCoupon(testDescriptor("x", 1), 1, coupons); got != "BIG" {
		t.Errorf("PickCoupon = %q, want BIG", got)
	}
	if got := p.PickCoupon(testDescriptor("x", 1), 1, nil); got != "" {
		t.Errorf("PickCoupon with no offers = %q, want empty", got)
	}
}
