package agent

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"cartstorm/internal/domain"
	"cartstorm/internal/shopapi"
)

// Pick is one cart line chosen by a policy.
type Pick struct {
	SKU        string
	Qty        int
	PriceCents int64
}

// Policy makes the shopping decisions for a workflow run. All
// decisions must be pure functions of their inputs so a run is
// reproducible for the same (agentID, cycleIndex, seed).
type Policy interface {
	// ShouldShop decides Skip vs Browse for the Deciding state.
	ShouldShop(d *domain.AgentDescriptor, cycleIndex int64, simTime time.Time) bool

	// BrowsePages returns how many catalog pages to fetch (>= 1).
	BrowsePages(d *domain.AgentDescriptor, cycleIndex int64) int

	// PickItems selects cart lines from the browsed products.
	// An empty result means the agent leaves without a cart.
	PickItems(d *domain.AgentDescriptor, cycleIndex int64, products []shopapi.Product) []Pick

	// PickCoupon selects a coupon code, or "" for none.
	PickCoupon(d *domain.AgentDescriptor, cycleIndex int64, coupons []shopapi.Coupon) string

	// ShouldAbandon decides whether to walk away before checkout.
	ShouldAbandon(d *domain.AgentDescriptor, cycleIndex int64, cartTotalCents int64) bool
}

// SeededPolicy derives every decision from
// SHA-256(agentID|cycleIndex|seed|salt), so identical inputs always
// produce identical transitions.
type SeededPolicy struct {
	Seed int64
}

// Compile-time interface check.
var _ Policy = (*SeededPolicy)(nil)

// drawUnit maps the hash of the inputs to [0, 1).
func (p *SeededPolicy) drawUnit(agentID string, cycleIndex int64, salt string) float64 {
	data := fmt.Sprintf("%s|%d|%d|%s", agentID, cycleIndex, p.Seed, salt)
	hash := sha256.Sum256([]byte(data))
	v := binary.BigEndian.Uint64(hash[:8])
	return float64(v) / float64(math.MaxUint64)
}

// ShouldShop draws once against the agent's shopping frequency
// modulated by its hour and weekday affinities at the simulated time.
func (p *SeededPolicy) ShouldShop(d *domain.AgentDescriptor, cycleIndex int64, simTime time.Time) bool {
	prob := d.ShoppingFrequency *
		d.HourAffinity[simTime.Hour()] *
		d.DayAffinity[int(simTime.Weekday())]
	if prob > 1 {
		prob = 1
	}
	if prob <= 0 {
		return false
	}
	return p.drawUnit(d.AgentID, cycleIndex, "decide") < prob
}

// BrowsePages returns 1 to 3 pages.
func (p *SeededPolicy) BrowsePages(d *domain.AgentDescriptor, cycleIndex int64) int {
	return 1 + int(p.drawUnit(d.AgentID, cycleIndex, "pages")*3)
}

// PickItems takes affordable products, each with a buy probability
// that falls as price approaches the budget, scaled by price
// sensitivity. At most three lines.
func (p *SeededPolicy) PickItems(d *domain.AgentDescriptor, cycleIndex int64, products []shopapi.Product) []Pick {
	const maxLines = 3

	var picks []Pick
	var total int64
	for _, prod := range products {
		if len(picks) >= maxLines {
			break
		}
		if prod.PriceCents <= 0 || total+prod.PriceCents > d.BudgetCents {
			continue
		}
		priceShare := float64(prod.PriceCents) / float64(d.BudgetCents)
		buyProb := 1 - d.PriceSensitivity*priceShare
		if p.drawUnit(d.AgentID, cycleIndex, "pick:"+prod.SKU) < buyProb {
			picks = append(picks, Pick{SKU: prod.SKU, Qty: 1, PriceCents: prod.PriceCents})
			total += prod.PriceCents
		}
	}
	return picks
}

// PickCoupon takes the best discount when any coupon is offered.
func (p *SeededPolicy) PickCoupon(_ *domain.AgentDescriptor, _ int64, coupons []shopapi.Coupon) string {
	best := ""
	bestPct := 0.0
	for _, c := range coupons {
		if c.DiscountPct > bestPct {
			best = c.Code
			bestPct = c.DiscountPct
		}
	}
	return best
}

// ShouldAbandon walks away when the cart exceeds the budget, otherwise
// with a small probability that rises with price sensitivity and how
// much of the budget the cart consumes.
func (p *SeededPolicy) ShouldAbandon(d *domain.AgentDescriptor, cycleIndex int64, cartTotalCents int64) bool {
	if cartTotalCents > d.BudgetCents {
		return true
	}
	if d.BudgetCents == 0 {
		return true
	}
	budgetShare := float64(cartTotalCents) / float64(d.BudgetCents)
	abandonProb := 0.05 + 0.25*d.PriceSensitivity*budgetShare
	return p.drawUnit(d.AgentID, cycleIndex, "abandon") < abandonProb
}
