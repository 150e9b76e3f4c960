package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	"github.com/angelmondragon/payswitch-backend/pkg/redis"
)

const (
	fieldMerchantID = "merchant_id"
	fieldHashKey    = "hash_key"
	fieldHashIV     = "hash_iv"
	fieldSyncedAt   = "synced_at"
)

// SettingsStore keeps one Redis hash per gateway payment method, mirroring how the
// checkout plugin reads its merchant settings.
type SettingsStore struct {
	store     redis.HashStore
	namespace string
	methods   []string
	now       func() time.Time
}

// NewSettingsStore validates the configured payment methods and builds the store.
func NewSettingsStore(store redis.HashStore, namespace string, methods []string) (*SettingsStore, error) {
	if store == nil {
		return nil, errors.New("hash store is required")
	}
	if strings.TrimSpace(namespace) == "" {
		return nil, errors.New("gateway settings namespace is required")
	}
	normalized := make([]string, 0, len(methods))
	seen := map[string]struct{}{}
	for _, raw := range methods {
		method := strings.ToLower(strings.TrimSpace(raw))
		if method == "" {
			continue
		}
		if !enums.IsGatewayPaymentMethod(method) {
			return nil, fmt.Errorf("unsupported gateway payment method %q", raw)
		}
		if _, dup := seen[method]; dup {
			continue
		}
		seen[method] = struct{}{}
		normalized = append(normalized, method)
	}
	if len(normalized) == 0 {
		return nil, errors.New("at least one gateway payment method is required")
	}
	return &SettingsStore{
		store:     store,
		namespace: namespace,
		methods:   normalized,
		now:       time.Now,
	}, nil
}

// Methods lists the payment methods the store writes.
func (s *SettingsStore) Methods() []string {
	out := make([]string, len(s.methods))
	copy(out, s.methods)
	return out
}

// SyncCredentials writes creds to every payment method. All methods are attempted;
// the combined error lists each method that failed.
func (s *SettingsStore) SyncCredentials(ctx context.Context, creds Credentials) error {
	if !creds.Complete() {
		return errors.New("incomplete gateway credentials")
	}
	values := map[string]string{
		fieldMerchantID: creds.MerchantID,
		fieldHashKey:    creds.SecretKey,
		fieldHashIV:     creds.SecretIV,
		fieldSyncedAt:   s.now().UTC().Format(time.RFC3339),
	}
	var err error
	for _, method := range s.methods {
		key := s.store.GatewaySettingsKey(s.namespace, method)
		if setErr := s.store.HSet(ctx, key, values); setErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", method, setErr))
		}
	}
	return err
}

// CurrentCredentials returns what the gateway has stored for method; ok is false when
// nothing was ever written.
func (s *SettingsStore) CurrentCredentials(ctx context.Context, method string) (Credentials, bool, error) {
	fields, err := s.store.HGetAll(ctx, s.store.GatewaySettingsKey(s.namespace, method))
	if err != nil {
		return Credentials{}, false, err
	}
	if len(fields) == 0 {
		return Credentials{}, false, nil
	}
	return Credentials{
		MerchantID: fields[fieldMerchantID],
		SecretKey:  fields[fieldHashKey],
		SecretIV:   fields[fieldHashIV],
	}, true, nil
}
