package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payswitch-backend/api/middleware"
	"github.com/angelmondragon/payswitch-backend/internal/accounts"
	"github.com/angelmondragon/payswitch-backend/internal/allocator"
	"github.com/angelmondragon/payswitch-backend/internal/reset"
	"github.com/angelmondragon/payswitch-backend/internal/rotation"
	"github.com/angelmondragon/payswitch-backend/internal/usage"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	"github.com/angelmondragon/payswitch-backend/pkg/pagination"
)

func testAccount(name string, limit, used int64) *models.MerchantAccount {
	return &models.MerchantAccount{
		ID:              uuid.New(),
		Name:            name,
		MerchantID:      "MS" + name + "0001",
		SecretKeySealed: "sealed-key",
		SecretIVSealed:  "sealed-iv",
		MonthlyLimit:    decimal.NewFromInt(limit),
		MonthlyUsage:    decimal.NewFromInt(used),
		CreatedAt:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

type stubAccounts struct {
	accounts.Service
	items   []models.MerchantAccount
	added   *accounts.AddInput
	updated *accounts.UpdateInput
	deleted uuid.UUID
	err     error
}

func (s *stubAccounts) List(context.Context) ([]models.MerchantAccount, error) {
	return s.items, s.err
}

func (s *stubAccounts) Add(_ context.Context, input accounts.AddInput) (*models.MerchantAccount, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.added = &input
	acct := testAccount(input.Name, input.MonthlyLimit.IntPart(), 0)
	acct.MerchantID = input.MerchantID
	return acct, nil
}

func (s *stubAccounts) Update(_ context.Context, id uuid.UUID, input accounts.UpdateInput) (*models.MerchantAccount, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.updated = &input
	acct := testAccount("A", 1000, 0)
	acct.ID = id
	if input.Name != nil {
		acct.Name = *input.Name
	}
	return acct, nil
}

func (s *stubAccounts) Delete(_ context.Context, id uuid.UUID) error {
	s.deleted = id
	return s.err
}

func (s *stubAccounts) GetActive(context.Context) (*models.MerchantAccount, error) {
	for i := range s.items {
		if s.items[i].IsActive {
			return &s.items[i], nil
		}
	}
	return nil, s.err
}

func serve(t *testing.T, method, pattern, target string, body any, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := chi.NewRouter()
	r.Method(method, pattern, handler)
	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(middleware.WithAdmin(req.Context(), "ops@example.com", enums.AdminRoleOperator))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestAccountListHidesSecrets(t *testing.T) {
	a := testAccount("A", 1000, 400)
	a.IsActive = true
	svc := &stubAccounts{items: []models.MerchantAccount{*a}}

	rec := serve(t, http.MethodGet, "/accounts", "/accounts", nil, AccountList(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sealed")

	var items []accountResponse
	decodeData(t, rec, &items)
	require.Len(t, items, 1)
	assert.Equal(t, "MSA0001", items[0].MerchantID)
	assert.True(t, items[0].Remaining.Equal(decimal.NewFromInt(600)))
	assert.True(t, items[0].IsActive)
}

func TestAccountCreateValidatesAndMaps(t *testing.T) {
	svc := &stubAccounts{}
	handler := AccountCreate(svc, nil)

	rec := serve(t, http.MethodPost, "/accounts", "/accounts", map[string]any{"name": "A"}, handler)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.added)

	rec = serve(t, http.MethodPost, "/accounts", "/accounts", map[string]any{
		"name":          " Shop A ",
		"merchant_id":   "MS12345",
		"secret_key":    "key",
		"secret_iv":     "iv",
		"monthly_limit": "200000",
		"is_default":    true,
	}, handler)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.added)
	assert.Equal(t, "Shop A", svc.added.Name)
	assert.True(t, svc.added.MonthlyLimit.Equal(decimal.NewFromInt(200000)))
	assert.True(t, svc.added.IsDefault)
	assert.Equal(t, "ops@example.com", svc.added.Operator)
}

func TestAccountCreateRejectsUnknownFields(t *testing.T) {
	rec := serve(t, http.MethodPost, "/accounts", "/accounts", map[string]any{"bogus": 1}, AccountCreate(&stubAccounts{}, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountUpdatePassesPartialFields(t *testing.T) {
	svc := &stubAccounts{}
	id := uuid.New()
	rec := serve(t, http.MethodPatch, "/accounts/{accountId}", "/accounts/"+id.String(), map[string]any{"name": "Renamed"}, AccountUpdate(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.updated)
	assert.Equal(t, "Renamed", *svc.updated.Name)
	assert.Nil(t, svc.updated.MonthlyLimit)
	assert.Nil(t, svc.updated.IsActive)
	assert.Equal(t, "ops@example.com", svc.updated.Operator)
}

func TestAccountDeleteMapsProtectedError(t *testing.T) {
	svc := &stubAccounts{err: pkgerrors.New(pkgerrors.CodeActiveAccountProtected, "switch first")}
	id := uuid.New()
	rec := serve(t, http.MethodDelete, "/accounts/{accountId}", "/accounts/"+id.String(), nil, AccountDelete(svc, nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeActiveAccountProtected), errorCode(t, rec))
	assert.Equal(t, id, svc.deleted)
}

func TestAccountDeleteRejectsBadID(t *testing.T) {
	rec := serve(t, http.MethodDelete, "/accounts/{accountId}", "/accounts/not-a-uuid", nil, AccountDelete(&stubAccounts{}, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountActiveNotFound(t *testing.T) {
	rec := serve(t, http.MethodGet, "/accounts/active", "/accounts/active", nil, AccountActive(&stubAccounts{}, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type stubRotation struct {
	manualID   uuid.UUID
	operator   string
	amount     decimal.Decimal
	limit      int
	result     *rotation.SwitchResult
	history    []models.SwitchHistoryEntry
	report     *rotation.ReconcileReport
	err        error
	resyncs    int
	clearCalls int
}

func (s *stubRotation) AutoSwitch(context.Context) (*rotation.SwitchResult, error) {
	return s.result, s.err
}

func (s *stubRotation) PrePaymentSwitch(_ context.Context, amount decimal.Decimal) (*rotation.SwitchResult, error) {
	s.amount = amount
	return s.result, s.err
}

func (s *stubRotation) ManualSwitch(_ context.Context, id uuid.UUID, operator string) (*rotation.SwitchResult, error) {
	s.manualID = id
	s.operator = operator
	return s.result, s.err
}

func (s *stubRotation) ListSwitchHistory(_ context.Context, limit int) ([]models.SwitchHistoryEntry, error) {
	s.limit = limit
	return s.history, s.err
}

func (s *stubRotation) ClearSwitchHistory(context.Context) (int64, error) {
	s.clearCalls++
	return int64(len(s.history)), s.err
}

func (s *stubRotation) Reconcile(context.Context) (*rotation.ReconcileReport, error) {
	return s.report, s.err
}

func (s *stubRotation) Resync(context.Context) (*rotation.ReconcileReport, error) {
	s.resyncs++
	return s.report, s.err
}

func TestRotationManualSwitchUsesOperator(t *testing.T) {
	target := testAccount("B", 1000, 0)
	svc := &stubRotation{result: &rotation.SwitchResult{Switched: true, Reason: enums.SwitchReasonManual, Account: target}}

	rec := serve(t, http.MethodPost, "/rotation/switch", "/rotation/switch", map[string]any{"account_id": target.ID}, RotationManualSwitch(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, target.ID, svc.manualID)
	assert.Equal(t, "ops@example.com", svc.operator)

	var resp switchResponse
	decodeData(t, rec, &resp)
	assert.True(t, resp.Switched)
	require.NotNil(t, resp.Account)
	assert.Equal(t, "MS***01", resp.Account.MaskedMerchantID)
	assert.NotContains(t, rec.Body.String(), "MSB0001")
}

func TestRotationManualSwitchRequiresAccountID(t *testing.T) {
	svc := &stubRotation{}
	rec := serve(t, http.MethodPost, "/rotation/switch", "/rotation/switch", map[string]any{}, RotationManualSwitch(svc, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uuid.Nil, svc.manualID)
}

func TestRotationPrePaymentCheckParsesAmount(t *testing.T) {
	svc := &stubRotation{err: pkgerrors.New(pkgerrors.CodeNoAccountsAvailable, "no merchant account can take 5000")}
	rec := serve(t, http.MethodPost, "/rotation/check", "/rotation/check", map[string]any{"amount": 5000}, RotationPrePaymentCheck(svc, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, svc.amount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, string(pkgerrors.CodeNoAccountsAvailable), errorCode(t, rec))
}

func TestRotationHistoryLimit(t *testing.T) {
	svc := &stubRotation{history: []models.SwitchHistoryEntry{{AccountName: "B", MaskedMerchantID: "MS***01", Reason: enums.SwitchReasonLimitReached}}}

	rec := serve(t, http.MethodGet, "/rotation/history", "/rotation/history?limit=5", nil, RotationHistory(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.limit)
	var items []switchHistoryResponse
	decodeData(t, rec, &items)
	require.Len(t, items, 1)
	assert.Equal(t, enums.SwitchReasonLimitReached, items[0].Reason)

	rec = serve(t, http.MethodGet, "/rotation/history", "/rotation/history", nil, RotationHistory(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, svc.limit)

	rec = serve(t, http.MethodGet, "/rotation/history", "/rotation/history?limit=abc", nil, RotationHistory(svc, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRotationResync(t *testing.T) {
	svc := &stubRotation{report: &rotation.ReconcileReport{InSync: true}}
	rec := serve(t, http.MethodPost, "/rotation/resync", "/rotation/resync", nil, RotationResync(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.resyncs)
}

type stubAllocator struct {
	selection *allocator.Selection
	exceeds   bool
	err       error
}

func (s *stubAllocator) SelectAccount(context.Context, decimal.Decimal) (*allocator.Selection, error) {
	return s.selection, s.err
}

func (s *stubAllocator) WouldExceedLimit(context.Context, decimal.Decimal) (bool, error) {
	return s.exceeds, nil
}

func TestRotationAllocationPreview(t *testing.T) {
	svc := &stubAllocator{selection: &allocator.Selection{Account: *testAccount("C", 1000, 0), Outcome: allocator.OutcomeEligible}, exceeds: true}

	rec := serve(t, http.MethodGet, "/rotation/allocation", "/rotation/allocation?amount=100.50", nil, RotationAllocation(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp allocationResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, allocator.OutcomeEligible, resp.Outcome)
	assert.True(t, resp.CanHandle)
	assert.True(t, resp.WouldExceedLimit)
	assert.True(t, resp.Amount.Equal(decimal.RequireFromString("100.50")))

	rec = serve(t, http.MethodGet, "/rotation/allocation", "/rotation/allocation", nil, RotationAllocation(svc, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubUsage struct {
	params pagination.Params
	page   *usage.AssociationPage
	reset  int
	err    error
}

func (s *stubUsage) UsageStats(context.Context) (*usage.Stats, error) {
	return &usage.Stats{AccountName: "A", ProcessedOrders: 3}, s.err
}

func (s *stubUsage) ResetUsage(context.Context) (int, error) {
	return s.reset, s.err
}

func (s *stubUsage) RecomputeUsage(context.Context) (*usage.Recompute, error) {
	return &usage.Recompute{Totals: map[uuid.UUID]decimal.Decimal{}}, s.err
}

func (s *stubUsage) ListAssociations(_ context.Context, params pagination.Params) (*usage.AssociationPage, error) {
	s.params = params
	return s.page, s.err
}

func TestUsageAssociationsPaging(t *testing.T) {
	charged := decimal.NullDecimal{Decimal: decimal.NewFromInt(250), Valid: true}
	svc := &stubUsage{page: &usage.AssociationPage{
		Items:      []models.OrderAccountAssociation{{OrderID: "1001", MerchantID: "MSA0001", ChargedAmount: charged}},
		NextCursor: "next",
	}}

	rec := serve(t, http.MethodGet, "/usage/associations", "/usage/associations?limit=10&cursor=abc", nil, UsageAssociations(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, svc.params)

	var page associationPageResponse
	decodeData(t, rec, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "MS***01", page.Items[0].MaskedMerchantID)
	require.NotNil(t, page.Items[0].ChargedAmount)
	assert.True(t, page.Items[0].ChargedAmount.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "next", page.NextCursor)

	rec = serve(t, http.MethodGet, "/usage/associations", "/usage/associations?limit=500", nil, UsageAssociations(svc, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsageReset(t *testing.T) {
	rec := serve(t, http.MethodPost, "/usage/reset", "/usage/reset", nil, UsageReset(&stubUsage{reset: 3}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	decodeData(t, rec, &resp)
	assert.Equal(t, 3, resp["accounts_reset"])
}

type stubResets struct {
	operator string
	run      *reset.Run
	err      error
}

func (s *stubResets) ManualReset(_ context.Context, operator string) (*reset.Run, error) {
	s.operator = operator
	return s.run, s.err
}

func (s *stubResets) ListHistory(context.Context, int) ([]models.ResetHistoryEntry, error) {
	return []models.ResetHistoryEntry{{Type: enums.ResetTypeMonthly, AccountsCount: 2}}, s.err
}

func (s *stubResets) ClearHistory(context.Context) (int64, error) { return 1, s.err }

func (s *stubResets) ListBackups(context.Context) ([]reset.BackupRun, error) {
	return []reset.BackupRun{{RunID: uuid.New(), Accounts: []models.UsageBackup{{AccountName: "A", Usage: decimal.NewFromInt(900)}}}}, s.err
}

func (s *stubResets) ClearBackups(context.Context) (int64, error) { return 2, s.err }

func (s *stubResets) Stats(context.Context) (*reset.Stats, error) {
	return &reset.Stats{TotalBackups: 2, TotalResets: 1}, s.err
}

func TestResetManualDisabled(t *testing.T) {
	svc := &stubResets{err: pkgerrors.New(pkgerrors.CodeFeatureDisabled, "manual reset is disabled")}
	rec := serve(t, http.MethodPost, "/resets", "/resets", nil, ResetManual(svc, nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeFeatureDisabled), errorCode(t, rec))
	assert.Equal(t, "ops@example.com", svc.operator)
}

func TestResetManualSuccess(t *testing.T) {
	run := &reset.Run{RunID: uuid.New(), Type: enums.ResetTypeManual, AccountsCount: 2}
	rec := serve(t, http.MethodPost, "/resets", "/resets", nil, ResetManual(&stubResets{run: run}, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp resetRunResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, run.RunID, resp.RunID)
	assert.Equal(t, 2, resp.AccountsCount)
}

func TestResetManualReportsRunOnBaselineFailure(t *testing.T) {
	run := &reset.Run{RunID: uuid.New(), Type: enums.ResetTypeManual, AccountsCount: 2}
	svc := &stubResets{run: run, err: pkgerrors.New(pkgerrors.CodeGatewaySyncFailed, "sync failed")}
	rec := serve(t, http.MethodPost, "/resets", "/resets", nil, ResetManual(svc, nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), run.RunID.String())
}

func TestResetBackupsAndStats(t *testing.T) {
	svc := &stubResets{}
	rec := serve(t, http.MethodGet, "/resets/backups", "/resets/backups", nil, ResetBackups(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []backupRunResponse
	decodeData(t, rec, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, "A", runs[0].Accounts[0].AccountName)

	rec = serve(t, http.MethodGet, "/resets/stats", "/resets/stats", nil, ResetStats(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats reset.Stats
	decodeData(t, rec, &stats)
	assert.EqualValues(t, 2, stats.TotalBackups)
}
