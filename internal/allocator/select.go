// Package allocator decides which merchant account should process a charge.
package allocator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
)

// Outcome classifies how an account was chosen.
type Outcome string

const (
	// OutcomeEligible means the account has headroom for the amount.
	OutcomeEligible Outcome = "eligible"
	// OutcomeDefault means nothing had headroom and the default account was used.
	OutcomeDefault Outcome = "default"
	// OutcomeOldest means nothing had headroom, no default exists, and the earliest
	// created account was used even though it may be over its limit.
	OutcomeOldest Outcome = "oldest"
)

// Selection is the allocator's answer for one amount.
type Selection struct {
	Account models.MerchantAccount
	Outcome Outcome
}

// CanHandle reports whether the selection is backed by headroom or a default account.
func (s Selection) CanHandle() bool {
	return s.Outcome == OutcomeEligible || s.Outcome == OutcomeDefault
}

// Reason maps the outcome onto the switch reason recorded when the selection is
// activated. eligibleReason is used for headroom picks.
func (s Selection) Reason(eligibleReason enums.SwitchReason) enums.SwitchReason {
	switch s.Outcome {
	case OutcomeDefault:
		return enums.SwitchReasonDefaultFallback
	case OutcomeOldest:
		return enums.SwitchReasonOldestFallback
	default:
		return eligibleReason
	}
}

// Eligible reports whether account can take amount without exceeding its limit. A
// zero amount asks for strictly positive headroom. Accounts with a non-positive limit
// are never eligible.
func Eligible(account models.MerchantAccount, amount decimal.Decimal) bool {
	if !account.MonthlyLimit.IsPositive() {
		return false
	}
	if amount.IsZero() {
		return account.MonthlyUsage.LessThan(account.MonthlyLimit)
	}
	return account.MonthlyUsage.Add(amount).LessThanOrEqual(account.MonthlyLimit)
}

// Select picks the eligible account with the lowest usage, then the default account,
// then the earliest created account. ok is false only when accounts is empty.
func Select(accounts []models.MerchantAccount, amount decimal.Decimal) (Selection, bool) {
	if len(accounts) == 0 {
		return Selection{}, false
	}

	ordered := make([]models.MerchantAccount, len(accounts))
	copy(ordered, accounts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return creationLess(ordered[i], ordered[j])
	})

	var best *models.MerchantAccount
	for i := range ordered {
		candidate := &ordered[i]
		if !Eligible(*candidate, amount) {
			continue
		}
		if best == nil || candidate.MonthlyUsage.LessThan(best.MonthlyUsage) {
			best = candidate
		}
	}
	if best != nil {
		return Selection{Account: *best, Outcome: OutcomeEligible}, true
	}

	for _, account := range ordered {
		if account.IsDefault {
			return Selection{Account: account, Outcome: OutcomeDefault}, true
		}
	}
	return Selection{Account: ordered[0], Outcome: OutcomeOldest}, true
}

// creationLess is the deterministic tie-break: creation time, then id.
func creationLess(a, b models.MerchantAccount) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}
