package coachplan

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Tier identifies a plan type. Tiers are totally ordered by Level.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierBlack   Tier = "premium_tier_2"
	TierPremium Tier = "premium_tier_3"
)

var tierLevels = map[Tier]int{
	TierFree:    0,
	TierBasic:   1,
	TierBlack:   2,
	TierPremium: 3,
}

// ParseTier accepts the stored identifiers and the marketing names
// "black" and "premium".
func ParseTier(s string) (Tier, error) {
	switch v := Tier(strings.ToLower(strings.TrimSpace(s))); v {
	case TierFree, TierBasic, TierBlack, TierPremium:
		return v, nil
	case "black":
		return TierBlack, nil
	case "premium":
		return TierPremium, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
}

// Level returns 0..3 for known tiers and -1 otherwise.
func (t Tier) Level() int {
	if l, ok := tierLevels[t]; ok {
		return l
	}
	return -1
}

func (t Tier) Valid() bool { return t.Level() >= 0 }

// IsPaid reports whether the tier requires a recurring subscription.
func (t Tier) IsPaid() bool { return t.Level() > 0 }

func (t Tier) String() string { return string(t) }

// Unlimited marks a catalog limit with no ceiling.
const Unlimited = -1

// Money is an amount in the smallest currency unit.
// R$49.90 is Money{Amount: 4990, Currency: "BRL"}.
type Money struct {
	Amount   int64
	Currency string
}

// Major returns the amount in whole currency units, as payment APIs expect.
func (m Money) Major() float64 {
	return float64(m.Amount) / 100
}

// Format renders the amount with its currency symbol for the given locale.
func (m Money) Format(tag language.Tag) string {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return fmt.Sprintf("%.2f %s", m.Major(), m.Currency)
	}
	return message.NewPrinter(tag).Sprint(currency.Symbol(unit.Amount(m.Major())))
}

// TierDefinition is the single source of truth for what a tier costs and grants.
type TierDefinition struct {
	Tier              Tier
	Name              string
	Price             Money
	StorageLimitGB    float64
	CatalogLimit      int // Unlimited for no ceiling
	CommissionPercent float64
}

// Catalog maps every tier to its definition. It is immutable once built.
type Catalog struct {
	defs map[Tier]TierDefinition
}

// NewCatalog validates that every known tier is defined exactly once,
// free costs nothing and paid tiers share one currency.
func NewCatalog(defs ...TierDefinition) (*Catalog, error) {
	c := &Catalog{defs: make(map[Tier]TierDefinition, len(defs))}
	var currencyCode string

	for _, d := range defs {
		if !d.Tier.Valid() {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("unknown tier %q", d.Tier))
		}
		if _, dup := c.defs[d.Tier]; dup {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("tier %q defined twice", d.Tier))
		}
		if d.StorageLimitGB <= 0 {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("tier %q: storage limit must be positive", d.Tier))
		}
		if d.CatalogLimit < Unlimited {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("tier %q: invalid catalog limit %d", d.Tier, d.CatalogLimit))
		}
		switch {
		case d.Tier.IsPaid() && d.Price.Amount <= 0:
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("paid tier %q must have a price", d.Tier))
		case !d.Tier.IsPaid() && d.Price.Amount != 0:
			return nil, errors.Join(ErrInvalidCatalog, errors.New("free tier must not have a price"))
		}
		if d.Tier.IsPaid() {
			if currencyCode == "" {
				currencyCode = d.Price.Currency
			} else if d.Price.Currency != currencyCode {
				return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("tier %q priced in %s, expected %s", d.Tier, d.Price.Currency, currencyCode))
			}
		}
		c.defs[d.Tier] = d
	}

	for t := range tierLevels {
		if _, ok := c.defs[t]; !ok {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("tier %q is not defined", t))
		}
	}
	return c, nil
}

// DefaultCatalog returns the marketplace's published price list.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		TierDefinition{Tier: TierFree, Name: "Free", Price: Money{0, "BRL"}, StorageLimitGB: 1, CatalogLimit: 3, CommissionPercent: 15},
		TierDefinition{Tier: TierBasic, Name: "Basic", Price: Money{4990, "BRL"}, StorageLimitGB: 10, CatalogLimit: 20, CommissionPercent: 10},
		TierDefinition{Tier: TierBlack, Name: "Black", Price: Money{9990, "BRL"}, StorageLimitGB: 50, CatalogLimit: 100, CommissionPercent: 7},
		TierDefinition{Tier: TierPremium, Name: "Premium", Price: Money{19990, "BRL"}, StorageLimitGB: 200, CatalogLimit: Unlimited, CommissionPercent: 5},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the definition of t or ErrInvalidTier.
func (c *Catalog) Lookup(t Tier) (TierDefinition, error) {
	d, ok := c.defs[t]
	if !ok {
		return TierDefinition{}, fmt.Errorf("%w: %q", ErrInvalidTier, t)
	}
	return d, nil
}

// All returns every definition ordered by level.
func (c *Catalog) All() []TierDefinition {
	out := make([]TierDefinition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b TierDefinition) int {
		return a.Tier.Level() - b.Tier.Level()
	})
	return out
}
