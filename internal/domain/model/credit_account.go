package model

import "time"

// CreditAccount is the per-namespace metering state. The zero value is not
// valid; use NewCreditAccount.
type CreditAccount struct {
	Credits             int          `json:"credits"`
	Plan                PlanTier     `json:"plan"`
	SubscriptionEndDate *time.Time   `json:"subscription_end_date,omitempty"`
	BillingCycle        BillingCycle `json:"billing_cycle,omitempty"`
}

func NewCreditAccount() *CreditAccount {
	return &CreditAccount{Credits: FreeQuota, Plan: PlanFree}
}

// Metered reports whether consumption decrements the balance.
func (a *CreditAccount) Metered() bool { return a.Plan != PlanPremium }

// Expired reports whether a paid subscription has lapsed at now.
func (a *CreditAccount) Expired(now time.Time) bool {
	if a.Plan == PlanFree || a.SubscriptionEndDate == nil {
		return false
	}
	return now.After(*a.SubscriptionEndDate)
}

// Demote resets the account to the free tier defaults.
func (a *CreditAccount) Demote() {
	a.Plan = PlanFree
	a.Credits = FreeQuota
	a.SubscriptionEndDate = nil
	a.BillingCycle = ""
}

func (a *CreditAccount) Clone() *CreditAccount {
	cp := *a
	if a.SubscriptionEndDate != nil {
		end := *a.SubscriptionEndDate
		cp.SubscriptionEndDate = &end
	}
	return &cp
}
