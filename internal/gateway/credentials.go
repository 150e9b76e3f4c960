// Package gateway holds the boundary between the ledger and the payment gateway's
// configuration. The gateway reads its merchant settings from a shared store; this
// package writes them whenever the active merchant account changes.
package gateway

import (
	"context"
	"strings"
)

// Credentials is the opened secret set pushed to the gateway for the active account.
type Credentials struct {
	MerchantID string
	SecretKey  string
	SecretIV   string
}

// Complete reports whether every credential field carries a value.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.MerchantID) != "" &&
		strings.TrimSpace(c.SecretKey) != "" &&
		strings.TrimSpace(c.SecretIV) != ""
}

// Equal compares credential sets field by field.
func (c Credentials) Equal(other Credentials) bool {
	return c.MerchantID == other.MerchantID &&
		c.SecretKey == other.SecretKey &&
		c.SecretIV == other.SecretIV
}

// CredentialSink receives the active account's credentials. A returned error means the
// gateway may still be charging with the previous account.
type CredentialSink interface {
	SyncCredentials(ctx context.Context, creds Credentials) error
}

// CredentialSource reads back what the gateway currently has configured, per payment method.
type CredentialSource interface {
	Methods() []string
	CurrentCredentials(ctx context.Context, method string) (Credentials, bool, error)
}
