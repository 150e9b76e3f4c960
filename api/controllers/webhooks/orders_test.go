package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payswitch-backend/internal/usage"
	orderwebhook "github.com/angelmondragon/payswitch-backend/internal/webhooks/orders"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
)

const testSecret = "whsec"

func TestOrderWebhook_SuccessAndIdempotent(t *testing.T) {
	payload := buildOrderEvent(t, "evt-1", orderwebhook.EventOrderCompleted)
	service := &fakeOrderWebhookService{}
	handler := OrderWebhook(service, testSecret, newGuard(t), nil)

	rec := postEvent(handler, payload, Sign(payload, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}
	var first struct {
		Data orderEventResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Data.Duplicate || first.Data.Status != usage.StatusApplied || first.Data.OrderID != "1001" {
		t.Fatalf("unexpected response %+v", first.Data)
	}

	rec2 := postEvent(handler, payload, Sign(payload, testSecret))
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec2.Code)
	}
	if service.calls != 1 {
		t.Fatalf("duplicate should not increment calls, got %d", service.calls)
	}
	var second struct {
		Data orderEventResponse `json:"data"`
	}
	if err := json.Unmarshal(rec2.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !second.Data.Duplicate {
		t.Fatal("expected duplicate flag on replay")
	}
}

func TestOrderWebhook_InvalidSignature(t *testing.T) {
	payload := buildOrderEvent(t, "evt-2", orderwebhook.EventOrderCompleted)
	service := &fakeOrderWebhookService{}
	handler := OrderWebhook(service, testSecret, newGuard(t), nil)

	rec := postEvent(handler, payload, Sign(payload, "other"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not run on bad signature")
	}

	rec = postEvent(handler, payload, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", rec.Code)
	}
}

func TestOrderWebhook_FailureReleasesEventForRetry(t *testing.T) {
	payload := buildOrderEvent(t, "evt-3", orderwebhook.EventOrderCompleted)
	service := &fakeOrderWebhookService{err: pkgerrors.New(pkgerrors.CodeNoAccountsAvailable, "no accounts")}
	handler := OrderWebhook(service, testSecret, newGuard(t), nil)

	rec := postEvent(handler, payload, Sign(payload, testSecret))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	service.err = nil
	rec = postEvent(handler, payload, Sign(payload, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
	if service.calls != 2 {
		t.Fatalf("expected two attempts, got %d", service.calls)
	}
}

func TestOrderWebhook_RejectsMissingEventID(t *testing.T) {
	payload := buildOrderEvent(t, "", orderwebhook.EventOrderCreated)
	handler := OrderWebhook(&fakeOrderWebhookService{}, testSecret, newGuard(t), nil)

	rec := postEvent(handler, payload, Sign(payload, testSecret))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOrderWebhook_RequiresSecret(t *testing.T) {
	payload := buildOrderEvent(t, "evt-4", orderwebhook.EventOrderCreated)
	handler := OrderWebhook(&fakeOrderWebhookService{}, "", newGuard(t), nil)

	rec := postEvent(handler, payload, Sign(payload, ""))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestValidSignatureAcceptsUppercaseHex(t *testing.T) {
	payload := []byte(`{"a":1}`)
	sig := Sign(payload, testSecret)
	upper := []byte(sig)
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 32
		}
	}
	if !ValidSignature(payload, testSecret, string(upper)) {
		t.Fatal("expected uppercase hex to validate")
	}
}

func buildOrderEvent(t *testing.T, eventID, eventType string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event_id": eventID,
		"type":     eventType,
		"data": map[string]any{
			"order_id":       "1001",
			"amount":         "250.00",
			"payment_method": "newebpay",
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func postEvent(handler http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/orders", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func newGuard(t *testing.T) *orderwebhook.IdempotencyGuard {
	t.Helper()
	guard, err := orderwebhook.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "order-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

type fakeOrderWebhookService struct {
	calls int
	err   error
}

func (f *fakeOrderWebhookService) HandleEvent(_ context.Context, event *orderwebhook.OrderEvent) (*usage.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	accountID := uuid.New()
	return &usage.Result{Status: usage.StatusApplied, OrderID: event.Data.OrderID, AccountID: &accountID}, nil
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: map[string]string{}}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("test:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
