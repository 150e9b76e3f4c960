package enums

import "fmt"

// ResetType distinguishes scheduled resets from admin-triggered ones.
type ResetType string

const (
	ResetTypeMonthly ResetType = "monthly_reset"
	ResetTypeManual  ResetType = "manual_reset"
)

// IsValid reports whether the value matches the reset_type enum.
func (t ResetType) IsValid() bool {
	return t == ResetTypeMonthly || t == ResetTypeManual
}

// ParseResetType converts raw input into ResetType.
func ParseResetType(value string) (ResetType, error) {
	candidate := ResetType(value)
	if !candidate.IsValid() {
		return "", fmt.Errorf("invalid reset type %q", value)
	}
	return candidate, nil
}
