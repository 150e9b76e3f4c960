package accounts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/payswitch-backend/internal/gateway"
	"github.com/angelmondragon/payswitch-backend/pkg/db"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/payswitch-backend/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type secretSealer interface {
	Seal(plaintext, merchantID string) (string, error)
	Open(token, merchantID string) (string, error)
}

type syncNotifier interface {
	GatewaySyncFailed(ctx context.Context, event payloads.GatewaySyncFailedEvent)
}

type ledgerMetrics interface {
	IncUsageDelta(kind string)
	IncSyncFailure()
}

// UsageHook runs inside the usage transaction before the delta is applied. Returning an
// error aborts the delta and is handed back to the caller unchanged.
type UsageHook func(tx *gorm.DB, account *models.MerchantAccount) error

// ResetHook runs inside the reset transaction with the pre-reset snapshot.
type ResetHook func(tx *gorm.DB, snapshot []models.MerchantAccount) error

// ActivationHook runs inside the activation transaction once the new account is active.
// previous is nil when nothing was active.
type ActivationHook func(tx *gorm.DB, previous, activated *models.MerchantAccount) error

// SwitchRecorder audits activations made through Add and Update so they leave the same
// history, metrics and events as controller switches. RecordSwitch runs inside the
// activating transaction; CountSwitch runs after it commits.
type SwitchRecorder interface {
	RecordSwitch(ctx context.Context, tx *gorm.DB, previous, activated *models.MerchantAccount, reason enums.SwitchReason, actor outbox.ActorRef) error
	CountSwitch(reason enums.SwitchReason)
}

// Service is the merchant account ledger.
type Service interface {
	Add(ctx context.Context, input AddInput) (*models.MerchantAccount, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.MerchantAccount, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.MerchantAccount, error)
	List(ctx context.Context) ([]models.MerchantAccount, error)
	GetActive(ctx context.Context) (*models.MerchantAccount, error)
	GetDefault(ctx context.Context) (*models.MerchantAccount, error)
	FindByMerchantID(ctx context.Context, merchantID string) (*models.MerchantAccount, error)
	ActiveCompanyInfo(ctx context.Context) (*CompanyInfo, error)
	ApplyUsageDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal, hook UsageHook) (*models.MerchantAccount, error)
	ResetAllUsage(ctx context.Context, hook ResetHook) ([]models.MerchantAccount, error)
	RebuildUsage(ctx context.Context, totals map[uuid.UUID]decimal.Decimal) error
	Activate(ctx context.Context, id uuid.UUID, hook ActivationHook) (*Activation, error)
	Credentials(account *models.MerchantAccount) (gateway.Credentials, error)
	SyncActive(ctx context.Context) (*models.MerchantAccount, error)
}

// ServiceParams wires the account ledger.
type ServiceParams struct {
	Repository         Repository
	TransactionRunner  txRunner
	Sealer             secretSealer
	Sink               gateway.CredentialSink
	Notifier           syncNotifier
	Metrics            ledgerMetrics
	Recorder           SwitchRecorder
	Logger             *logger.Logger
	ClampNegativeUsage bool
}

type service struct {
	// gatewayMu is held from any change of the active account until the gateway holds
	// that account's credentials. Always taken before mu.
	gatewayMu sync.Mutex
	// mu serializes structural changes and resets; usage deltas share it for reading.
	mu       sync.RWMutex
	repo     Repository
	tx       txRunner
	sealer   secretSealer
	sink     gateway.CredentialSink
	notifier syncNotifier
	metrics  ledgerMetrics
	recorder SwitchRecorder
	logg     *logger.Logger
	clamp    bool
}

// AddInput carries a new account. Secrets arrive in plaintext and are sealed before storage.
type AddInput struct {
	Name         string
	MerchantID   string
	SecretKey    string
	SecretIV     string
	MonthlyLimit decimal.Decimal
	IsActive     bool
	IsDefault    bool
	CompanyName  string
	TaxID        string
	Address      string
	Phone        string
	// Operator is recorded as the actor when the new account displaces the active one.
	Operator     string
}

// UpdateInput carries a partial update; nil fields are left untouched.
type UpdateInput struct {
	Name         *string
	MerchantID   *string
	SecretKey    *string
	SecretIV     *string
	MonthlyLimit *decimal.Decimal
	IsActive     *bool
	IsDefault    *bool
	CompanyName  *string
	TaxID        *string
	Address      *string
	Phone        *string
	Operator     string
}

// CompanyInfo is what invoices print for the active account.
type CompanyInfo struct {
	AccountID   uuid.UUID `json:"account_id"`
	AccountName string    `json:"account_name"`
	MerchantID  string    `json:"merchant_id"`
	CompanyName string    `json:"company_name"`
	TaxID       string    `json:"tax_id"`
	Address     string    `json:"address"`
	Phone       string    `json:"phone"`
}

// Activation reports the outcome of Activate. Changed is false when the account was
// already active.
type Activation struct {
	Previous *models.MerchantAccount
	Account  *models.MerchantAccount
	Changed  bool
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Sealer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credential sealer required")
	}
	if params.Sink == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway credential sink required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repository,
		tx:       params.TransactionRunner,
		sealer:   params.Sealer,
		sink:     params.Sink,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		recorder: params.Recorder,
		logg:     logg,
		clamp:    params.ClampNegativeUsage,
	}, nil
}

func (s *service) Add(ctx context.Context, input AddInput) (*models.MerchantAccount, error) {
	if err := validateAdd(input); err != nil {
		return nil, err
	}

	merchantID := strings.TrimSpace(input.MerchantID)
	sealedKey, sealedIV, err := s.sealPair(input.SecretKey, input.SecretIV, merchantID)
	if err != nil {
		return nil, err
	}

	account := &models.MerchantAccount{
		Name:            strings.TrimSpace(input.Name),
		MerchantID:      merchantID,
		SecretKeySealed: sealedKey,
		SecretIVSealed:  sealedIV,
		MonthlyLimit:    input.MonthlyLimit,
		MonthlyUsage:    decimal.Zero,
		IsActive:        input.IsActive,
		IsDefault:       input.IsDefault,
		CompanyName:     strings.TrimSpace(input.CompanyName),
		TaxID:           strings.TrimSpace(input.TaxID),
		Address:         strings.TrimSpace(input.Address),
		Phone:           strings.TrimSpace(input.Phone),
	}

	if account.IsActive {
		s.gatewayMu.Lock()
		defer s.gatewayMu.Unlock()
	}

	var displaced bool
	s.mu.Lock()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		all, err := repo.LockAll(ctx)
		if err != nil {
			return err
		}
		if account.IsDefault {
			if err := repo.UnsetDefaultAll(ctx); err != nil {
				return err
			}
		}
		if !account.IsActive {
			return repo.Create(ctx, account)
		}
		if err := repo.DeactivateAll(ctx); err != nil {
			return err
		}
		if err := repo.Create(ctx, account); err != nil {
			return err
		}
		displaced, err = s.recordSwitch(ctx, tx, activeIn(all), account, input.Operator)
		return err
	})
	s.mu.Unlock()
	if err != nil {
		return nil, mapRepoError(err, "create merchant account")
	}

	s.logg.Info(s.logg.WithAccountID(ctx, account.ID.String()), "accounts.created")

	if displaced {
		s.countSwitch()
	}
	if account.IsActive {
		if err := s.syncCredentials(ctx, account); err != nil {
			return account, err
		}
	}
	return account, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.MerchantAccount, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if err := validateUpdate(input); err != nil {
		return nil, err
	}

	var (
		updated        *models.MerchantAccount
		needsSync      bool
		credsTouched   = input.MerchantID != nil || input.SecretKey != nil || input.SecretIV != nil
		becomingActive bool
		displaced      bool
	)

	s.gatewayMu.Lock()
	defer s.gatewayMu.Unlock()

	s.mu.Lock()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		all, err := repo.LockAll(ctx)
		if err != nil {
			return err
		}
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}

		if input.IsActive != nil && !*input.IsActive && current.IsActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "activate another account instead of deactivating the active one")
		}

		fields, err := s.updateFields(current, input)
		if err != nil {
			return err
		}

		if input.IsActive != nil && *input.IsActive && !current.IsActive {
			becomingActive = true
			if err := repo.DeactivateAll(ctx); err != nil {
				return err
			}
		}
		if input.IsDefault != nil && *input.IsDefault && !current.IsDefault {
			if err := repo.UnsetDefaultAll(ctx); err != nil {
				return err
			}
		}
		if err := repo.UpdateFields(ctx, id, fields); err != nil {
			return err
		}

		updated, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		needsSync = updated.IsActive && (becomingActive || credsTouched)
		if becomingActive {
			displaced, err = s.recordSwitch(ctx, tx, activeIn(all), updated, input.Operator)
		}
		return err
	})
	s.mu.Unlock()
	if err != nil {
		return nil, mapRepoError(err, "update merchant account")
	}

	if displaced {
		s.countSwitch()
	}
	if needsSync {
		if err := s.syncCredentials(ctx, updated); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

func (s *service) updateFields(current *models.MerchantAccount, input UpdateInput) (map[string]any, error) {
	fields := map[string]any{}
	if input.Name != nil {
		fields["name"] = strings.TrimSpace(*input.Name)
	}
	if input.MonthlyLimit != nil {
		fields["monthly_limit"] = *input.MonthlyLimit
	}
	if input.IsActive != nil {
		fields["is_active"] = *input.IsActive
	}
	if input.IsDefault != nil {
		fields["is_default"] = *input.IsDefault
	}
	if input.CompanyName != nil {
		fields["company_name"] = strings.TrimSpace(*input.CompanyName)
	}
	if input.TaxID != nil {
		fields["tax_id"] = strings.TrimSpace(*input.TaxID)
	}
	if input.Address != nil {
		fields["address"] = strings.TrimSpace(*input.Address)
	}
	if input.Phone != nil {
		fields["phone"] = strings.TrimSpace(*input.Phone)
	}

	if input.MerchantID == nil && input.SecretKey == nil && input.SecretIV == nil {
		return fields, nil
	}

	// Sealed secrets are bound to the merchant id, so any credential change re-seals both.
	creds, err := s.Credentials(current)
	if err != nil {
		return nil, err
	}
	merchantID := current.MerchantID
	if input.MerchantID != nil {
		merchantID = strings.TrimSpace(*input.MerchantID)
	}
	if input.SecretKey != nil {
		creds.SecretKey = *input.SecretKey
	}
	if input.SecretIV != nil {
		creds.SecretIV = *input.SecretIV
	}
	sealedKey, sealedIV, err := s.sealPair(creds.SecretKey, creds.SecretIV, merchantID)
	if err != nil {
		return nil, err
	}
	fields["merchant_id"] = merchantID
	fields["secret_key_sealed"] = sealedKey
	fields["secret_iv_sealed"] = sealedIV
	return fields, nil
}

// Delete refuses to remove the active account while other accounts exist.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		all, err := repo.LockAll(ctx)
		if err != nil {
			return err
		}
		var target *models.MerchantAccount
		for i := range all {
			if all[i].ID == id {
				target = &all[i]
				break
			}
		}
		if target == nil {
			return gorm.ErrRecordNotFound
		}
		if target.IsActive && len(all) > 1 {
			return pkgerrors.New(pkgerrors.CodeActiveAccountProtected, "switch to another account before deleting the active one").
				WithDetails(map[string]any{"account_id": id.String(), "accounts": len(all)})
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return mapRepoError(err, "delete merchant account")
	}
	s.logg.Info(s.logg.WithAccountID(ctx, id.String()), "accounts.deleted")
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.MerchantAccount, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "load merchant account")
	}
	return account, nil
}

func (s *service) List(ctx context.Context) ([]models.MerchantAccount, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list merchant accounts")
	}
	return accounts, nil
}

// GetActive returns nil without error when no account is active.
func (s *service) GetActive(ctx context.Context) (*models.MerchantAccount, error) {
	account, err := s.repo.FindActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active account")
	}
	return account, nil
}

func (s *service) GetDefault(ctx context.Context) (*models.MerchantAccount, error) {
	account, err := s.repo.FindDefault(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default account")
	}
	return account, nil
}

// FindByMerchantID lets gateway callbacks identify which account a response belongs to.
func (s *service) FindByMerchantID(ctx context.Context, merchantID string) (*models.MerchantAccount, error) {
	if strings.TrimSpace(merchantID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant id is required")
	}
	account, err := s.repo.FindByMerchantID(ctx, strings.TrimSpace(merchantID))
	if err != nil {
		return nil, mapRepoError(err, "lookup merchant id")
	}
	return account, nil
}

func (s *service) ActiveCompanyInfo(ctx context.Context) (*CompanyInfo, error) {
	active, err := s.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active merchant account")
	}
	return &CompanyInfo{
		AccountID:   active.ID,
		AccountName: active.Name,
		MerchantID:  active.MerchantID,
		CompanyName: active.CompanyName,
		TaxID:       active.TaxID,
		Address:     active.Address,
		Phone:       active.Phone,
	}, nil
}

// ApplyUsageDelta adds delta (negative for refunds) to the account's monthly usage.
// It never overlaps a reset; concurrent deltas are serialized by the database.
func (s *service) ApplyUsageDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal, hook UsageHook) (*models.MerchantAccount, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		updated *models.MerchantAccount
		hookErr error
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if hook != nil {
			if err := hook(tx, account); err != nil {
				hookErr = err
				return err
			}
		}
		if err := repo.AddUsage(ctx, id, delta, s.clamp); err != nil {
			return err
		}
		updated, err = repo.FindByID(ctx, id)
		return err
	})
	if hookErr != nil {
		return nil, hookErr
	}
	if err != nil {
		return nil, mapRepoError(err, "apply usage delta")
	}

	kind := "charge"
	if delta.IsNegative() {
		kind = "refund"
	}
	if s.metrics != nil {
		s.metrics.IncUsageDelta(kind)
	}
	return updated, nil
}

// ResetAllUsage zeroes every account's usage and returns the pre-reset snapshot.
func (s *service) ResetAllUsage(ctx context.Context, hook ResetHook) ([]models.MerchantAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snapshot []models.MerchantAccount
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		snapshot, err = repo.LockAll(ctx)
		if err != nil {
			return err
		}
		if hook != nil {
			if err := hook(tx, snapshot); err != nil {
				return err
			}
		}
		_, err = repo.ResetAllUsage(ctx)
		return err
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset usage")
	}
	return snapshot, nil
}

// RebuildUsage replaces stored usage with totals; accounts missing from totals drop to zero.
func (s *service) RebuildUsage(ctx context.Context, totals map[uuid.UUID]decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		all, err := repo.LockAll(ctx)
		if err != nil {
			return err
		}
		for _, account := range all {
			total := totals[account.ID]
			if s.clamp && total.IsNegative() {
				total = decimal.Zero
			}
			if err := repo.SetUsage(ctx, account.ID, total); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rebuild usage")
	}
	if s.metrics != nil {
		s.metrics.IncUsageDelta("recompute")
	}
	return nil
}

// Activate makes id the single active account and pushes its credentials to the
// gateway before returning. The hook and the sync are skipped when the account was
// already active. A sync failure returns the committed activation with the error.
func (s *service) Activate(ctx context.Context, id uuid.UUID, hook ActivationHook) (*Activation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}

	s.gatewayMu.Lock()
	defer s.gatewayMu.Unlock()

	result := &Activation{}
	s.mu.Lock()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		all, err := repo.LockAll(ctx)
		if err != nil {
			return err
		}
		for i := range all {
			account := all[i]
			if account.ID == id {
				result.Account = &account
			}
			if account.IsActive {
				result.Previous = &account
			}
		}
		if result.Account == nil {
			return gorm.ErrRecordNotFound
		}
		if result.Previous != nil && result.Previous.ID == id {
			return nil
		}

		if err := repo.DeactivateAll(ctx); err != nil {
			return err
		}
		if err := repo.SetActive(ctx, id); err != nil {
			return err
		}
		result.Account.IsActive = true
		result.Changed = true
		if hook != nil {
			return hook(tx, result.Previous, result.Account)
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return nil, mapRepoError(err, "activate merchant account")
	}
	if result.Changed {
		if err := s.syncCredentials(ctx, result.Account); err != nil {
			return result, err
		}
	}
	return result, nil
}

// SyncActive pushes the active account's credentials to the gateway again.
func (s *service) SyncActive(ctx context.Context) (*models.MerchantAccount, error) {
	s.gatewayMu.Lock()
	defer s.gatewayMu.Unlock()

	active, err := s.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active merchant account")
	}
	return active, s.syncCredentials(ctx, active)
}

// recordSwitch audits an edit that moved the active flag off another account. Activating
// the first account is not a switch. It reports whether anything was recorded.
func (s *service) recordSwitch(ctx context.Context, tx *gorm.DB, previous, activated *models.MerchantAccount, operator string) (bool, error) {
	if s.recorder == nil || previous == nil {
		return false, nil
	}
	actor := outbox.ActorRef{Kind: enums.ActorAdmin, Subject: strings.TrimSpace(operator)}
	if err := s.recorder.RecordSwitch(ctx, tx, previous, activated, enums.SwitchReasonManual, actor); err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) countSwitch() {
	if s.recorder != nil {
		s.recorder.CountSwitch(enums.SwitchReasonManual)
	}
}

func activeIn(all []models.MerchantAccount) *models.MerchantAccount {
	for i := range all {
		if all[i].IsActive {
			active := all[i]
			return &active
		}
	}
	return nil
}

// Credentials opens the account's sealed secrets.
func (s *service) Credentials(account *models.MerchantAccount) (gateway.Credentials, error) {
	if account == nil {
		return gateway.Credentials{}, pkgerrors.New(pkgerrors.CodeValidation, "account is required")
	}
	key, err := s.sealer.Open(account.SecretKeySealed, account.MerchantID)
	if err != nil {
		return gateway.Credentials{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open secret key")
	}
	iv, err := s.sealer.Open(account.SecretIVSealed, account.MerchantID)
	if err != nil {
		return gateway.Credentials{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open secret iv")
	}
	return gateway.Credentials{MerchantID: account.MerchantID, SecretKey: key, SecretIV: iv}, nil
}

// syncCredentials pushes the account's credentials to the gateway. Callers hold
// gatewayMu. A failure does not undo the ledger change that preceded it.
func (s *service) syncCredentials(ctx context.Context, account *models.MerchantAccount) error {
	creds, err := s.Credentials(account)
	if err == nil {
		err = s.sink.SyncCredentials(ctx, creds)
	}
	if err == nil {
		s.logg.Info(s.logg.WithAccountID(ctx, account.ID.String()), "accounts.gateway_synced")
		return nil
	}

	masked := security.MaskMerchantID(account.MerchantID)
	s.logg.Error(s.logg.WithFields(ctx, map[string]any{
		"account_id":  account.ID.String(),
		"merchant_id": masked,
	}), "accounts.gateway_sync_failed", err)
	if s.metrics != nil {
		s.metrics.IncSyncFailure()
	}
	if s.notifier != nil {
		s.notifier.GatewaySyncFailed(ctx, payloads.GatewaySyncFailedEvent{
			AccountID:        account.ID,
			MaskedMerchantID: masked,
			Error:            err.Error(),
		})
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewaySyncFailed, err, "sync gateway credentials").
		WithDetails(map[string]any{"account_id": account.ID.String(), "merchant_id": masked})
}

func (s *service) sealPair(key, iv, merchantID string) (string, string, error) {
	sealedKey, err := s.sealer.Seal(key, merchantID)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal secret key")
	}
	sealedIV, err := s.sealer.Seal(iv, merchantID)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal secret iv")
	}
	return sealedKey, sealedIV, nil
}

func validateAdd(input AddInput) error {
	missing := []string{}
	for field, value := range map[string]string{
		"name":        input.Name,
		"merchant_id": input.MerchantID,
		"secret_key":  input.SecretKey,
		"secret_iv":   input.SecretIV,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "required account fields missing").
			WithDetails(map[string]any{"missing": sortedStrings(missing)})
	}
	if input.MonthlyLimit.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "monthly_limit must not be negative")
	}
	return nil
}

func validateUpdate(input UpdateInput) error {
	for field, value := range map[string]*string{
		"name":        input.Name,
		"merchant_id": input.MerchantID,
		"secret_key":  input.SecretKey,
		"secret_iv":   input.SecretIV,
	} {
		if value != nil && strings.TrimSpace(*value) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must not be empty", field))
		}
	}
	if input.MonthlyLimit != nil && input.MonthlyLimit.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "monthly_limit must not be negative")
	}
	return nil
}

func mapRepoError(err error, action string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "merchant account not found")
	}
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "merchant account flags changed concurrently")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func sortedStrings(values []string) []string {
	sort.Strings(values)
	return values
}
