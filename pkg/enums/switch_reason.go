package enums

import "fmt"

// SwitchReason explains why the active merchant account changed.
type SwitchReason string

const (
	SwitchReasonLimitReached    SwitchReason = "limit_reached"
	SwitchReasonDefaultFallback SwitchReason = "default_fallback"
	SwitchReasonOldestFallback  SwitchReason = "oldest_fallback"
	SwitchReasonManual          SwitchReason = "manual"
	SwitchReasonPrePayment      SwitchReason = "pre_payment"
	SwitchReasonMonthlyReset    SwitchReason = "monthly_reset"
)

var validSwitchReasons = []SwitchReason{
	SwitchReasonLimitReached,
	SwitchReasonDefaultFallback,
	SwitchReasonOldestFallback,
	SwitchReasonManual,
	SwitchReasonPrePayment,
	SwitchReasonMonthlyReset,
}

// IsValid reports whether the value matches the switch_reason enum.
func (r SwitchReason) IsValid() bool {
	for _, candidate := range validSwitchReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseSwitchReason converts raw input into SwitchReason.
func ParseSwitchReason(value string) (SwitchReason, error) {
	for _, candidate := range validSwitchReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid switch reason %q", value)
}
