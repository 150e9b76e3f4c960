package validators

import (
	"strings"
	"unicode"
)

// AccountField names a free-text merchant account attribute accepted by the
// admin API.
type AccountField string

const (
	FieldAccountName AccountField = "name"
	FieldMerchantID  AccountField = "merchant_id"
	FieldCompanyName AccountField = "company_name"
	FieldTaxID       AccountField = "tax_id"
	FieldAddress     AccountField = "address"
	FieldPhone       AccountField = "phone"
)

// Limits in runes, matching the merchant_accounts column sizes.
var accountFieldLimits = map[AccountField]int{
	FieldAccountName: 100,
	FieldMerchantID:  64,
	FieldCompanyName: 200,
	FieldTaxID:       32,
	FieldAddress:     300,
	FieldPhone:       32,
}

// SanitizeAccountField trims the value, drops control characters and
// collapses whitespace runs, then cuts it to the column limit without
// splitting a multi-byte character. Merchant ids and tax ids are identifiers
// and lose all inner whitespace.
func SanitizeAccountField(field AccountField, input string) string {
	var b strings.Builder
	b.Grow(len(input))

	limit := accountFieldLimits[field]
	identifier := field == FieldMerchantID || field == FieldTaxID
	written := 0
	pendingSpace := false
	for _, r := range strings.TrimSpace(input) {
		if unicode.IsSpace(r) {
			pendingSpace = !identifier
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if pendingSpace {
			if limit > 0 && written+1 >= limit {
				break
			}
			b.WriteByte(' ')
			written++
			pendingSpace = false
		}
		if limit > 0 && written >= limit {
			break
		}
		b.WriteRune(r)
		written++
	}
	return b.String()
}

// SanitizeAccountFieldPtr applies SanitizeAccountField to an optional PATCH
// value, leaving nil untouched.
func SanitizeAccountFieldPtr(field AccountField, input *string) *string {
	if input == nil {
		return nil
	}
	out := SanitizeAccountField(field, *input)
	return &out
}
