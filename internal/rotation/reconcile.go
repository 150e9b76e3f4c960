package rotation

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/payswitch-backend/internal/gateway"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/security"
)

// SyncStatus describes whether a gateway payment method carries the active account's
// credentials.
type SyncStatus string

const (
	SyncStatusInSync   SyncStatus = "in_sync"
	SyncStatusMissing  SyncStatus = "missing"
	SyncStatusMismatch SyncStatus = "mismatch"
	SyncStatusError    SyncStatus = "error"
)

type MethodStatus struct {
	Method           string     `json:"method"`
	Status           SyncStatus `json:"status"`
	MaskedMerchantID string     `json:"masked_merchant_id,omitempty"`
	Error            string     `json:"error,omitempty"`
}

type ReconcileReport struct {
	AccountID        uuid.UUID      `json:"account_id"`
	MaskedMerchantID string         `json:"masked_merchant_id"`
	InSync           bool           `json:"in_sync"`
	Methods          []MethodStatus `json:"methods"`
}

// Reconcile compares what the gateway reads for each payment method against the active
// account. It never writes.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	if s.source == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway settings source not configured")
	}
	active, err := s.ledger.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active merchant account")
	}
	want, err := s.ledger.Credentials(active)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		AccountID:        active.ID,
		MaskedMerchantID: security.MaskMerchantID(active.MerchantID),
		InSync:           true,
	}
	for _, method := range s.source.Methods() {
		status := s.methodStatus(ctx, method, want)
		if status.Status != SyncStatusInSync {
			report.InSync = false
		}
		report.Methods = append(report.Methods, status)
	}
	return report, nil
}

func (s *Service) methodStatus(ctx context.Context, method string, want gateway.Credentials) MethodStatus {
	status := MethodStatus{Method: method}
	got, ok, err := s.source.CurrentCredentials(ctx, method)
	switch {
	case err != nil:
		status.Status = SyncStatusError
		status.Error = err.Error()
	case !ok:
		status.Status = SyncStatusMissing
	case got.Equal(want):
		status.Status = SyncStatusInSync
		status.MaskedMerchantID = security.MaskMerchantID(got.MerchantID)
	default:
		status.Status = SyncStatusMismatch
		status.MaskedMerchantID = security.MaskMerchantID(got.MerchantID)
	}
	return status
}

// Resync pushes the active account's credentials to the gateway again.
func (s *Service) Resync(ctx context.Context) (*ReconcileReport, error) {
	s.mu.Lock()
	active, err := s.ledger.SyncActive(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithAccountID(ctx, active.ID.String()), "rotation.resynced")
	if s.source == nil {
		return &ReconcileReport{AccountID: active.ID, MaskedMerchantID: security.MaskMerchantID(active.MerchantID), InSync: true}, nil
	}
	return s.Reconcile(ctx)
}
