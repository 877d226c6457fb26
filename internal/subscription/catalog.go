// Package subscription owns the plan catalog and applies paid plans to
// user accounts.
package subscription

import (
	"fmt"
	"sort"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/gaiya-app/gaiya-cloud/internal/validate"
	"github.com/shopspring/decimal"
)

// Plan is a purchasable product.
type Plan struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Tier         models.Tier     `json:"tier"`
	DurationDays int             `json:"duration_days"` // 0 for lifetime.
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
}

// Catalog is the fixed set of plans with their configured prices.
type Catalog struct {
	plans  map[string]Plan
	prices validate.Prices
}

// NewCatalog builds the catalog from a price list.
func NewCatalog(prices validate.Prices, currency string) *Catalog {
	if prices == nil {
		prices = validate.DefaultPrices()
	}
	defs := []Plan{
		{ID: validate.PlanProMonthly, Name: "Gaiya Pro Monthly", Tier: models.TierPro, DurationDays: 30},
		{ID: validate.PlanProYearly, Name: "Gaiya Pro Yearly", Tier: models.TierPro, DurationDays: 365},
		{ID: validate.PlanLifetime, Name: "Gaiya Lifetime", Tier: models.TierLifetime},
	}
	plans := make(map[string]Plan, len(defs))
	for _, p := range defs {
		p.Price = prices[p.ID]
		p.Currency = currency
		plans[p.ID] = p
	}
	return &Catalog{plans: plans, prices: prices}
}

// Prices returns the price list backing the catalog.
func (c *Catalog) Prices() validate.Prices {
	return c.prices
}

// Lookup returns the plan with id.
func (c *Catalog) Lookup(id string) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// List returns every plan, cheapest first.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out
}

// Derive returns the tier and expiry granted by plan id when activated at now.
// Lifetime plans never expire.
func (c *Catalog) Derive(id string, now time.Time) (models.Tier, *time.Time, error) {
	p, ok := c.plans[id]
	if !ok {
		return "", nil, fmt.Errorf("subscription: unknown plan %q", id)
	}
	if p.DurationDays == 0 {
		return p.Tier, nil, nil
	}
	expires := now.UTC().Add(time.Duration(p.DurationDays) * 24 * time.Hour)
	return p.Tier, &expires, nil
}
