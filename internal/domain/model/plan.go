package model

import (
	"time"

	"jesusia-companion/internal/domain"
)

type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanBasic   PlanTier = "basic"
	PlanPremium PlanTier = "premium"
)

type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingAnnual  BillingCycle = "annual"
)

const (
	// UnlimitedCredits is the quota sentinel of tiers that are not metered.
	UnlimitedCredits = -1
	// FreeQuota is the balance a free account is (re)filled to.
	FreeQuota = 5
	// AdRewardCredits is granted for each completed rewarded ad.
	AdRewardCredits = 2
)

// PlanCatalogEntry is the static, display-oriented description of a tier.
type PlanCatalogEntry struct {
	Tier       PlanTier `json:"tier"`
	Name       string   `json:"name"`
	PriceCents int64    `json:"price_cents"`
	Credits    int      `json:"credits"`
	Features   []string `json:"features"`
}

func (e PlanCatalogEntry) Unlimited() bool { return e.Credits == UnlimitedCredits }

var catalog = map[PlanTier]PlanCatalogEntry{
	PlanFree: {
		Tier:       PlanFree,
		Name:       "Gratuito",
		PriceCents: 0,
		Credits:    FreeQuota,
		Features: []string{
			"Acesso a 5 mensagens por dia",
			"Ganhe créditos assistindo anúncios",
			"Respostas baseadas na Bíblia",
		},
	},
	PlanBasic: {
		Tier:       PlanBasic,
		Name:       "Básico",
		PriceCents: 990,
		Credits:    50,
		Features: []string{
			"Acesso a 50 mensagens por dia",
			"Sem anúncios",
			"Respostas baseadas na Bíblia",
			"Suporte por e-mail",
		},
	},
	PlanPremium: {
		Tier:       PlanPremium,
		Name:       "Premium",
		PriceCents: 1990,
		Credits:    UnlimitedCredits,
		Features: []string{
			"Mensagens ilimitadas",
			"Sem anúncios",
			"Respostas baseadas na Bíblia",
			"Suporte prioritário",
			"Acesso a recursos exclusivos",
		},
	},
}

// Catalog returns the plan catalog ordered free, basic, premium.
func Catalog() []PlanCatalogEntry {
	out := make([]PlanCatalogEntry, 0, len(catalog))
	for _, t := range []PlanTier{PlanFree, PlanBasic, PlanPremium} {
		e := catalog[t]
		e.Features = append([]string(nil), e.Features...)
		out = append(out, e)
	}
	return out
}

// LookupPlan returns the catalog entry of a tier.
func LookupPlan(t PlanTier) (PlanCatalogEntry, error) {
	e, ok := catalog[t]
	if !ok {
		return PlanCatalogEntry{}, domain.ErrInvalidArgument
	}
	return e, nil
}

func ParsePlanTier(s string) (PlanTier, error) {
	t := PlanTier(s)
	if _, ok := catalog[t]; !ok {
		return "", domain.ErrInvalidArgument
	}
	return t, nil
}

func ParseBillingCycle(s string) (BillingCycle, error) {
	switch c := BillingCycle(s); c {
	case BillingMonthly, BillingAnnual:
		return c, nil
	case "":
		return BillingMonthly, nil
	default:
		return "", domain.ErrInvalidArgument
	}
}

// Advance returns base moved forward by one billing period.
func (c BillingCycle) Advance(base time.Time) time.Time {
	if c == BillingAnnual {
		return base.AddDate(0, 12, 0)
	}
	return base.AddDate(0, 1, 0)
}
