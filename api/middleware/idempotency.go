package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/payswitch-backend/api/responses"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/payswitch-backend/pkg/redis"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from a stored admin mutation.
	ReplayedHeader = "Idempotent-Replayed"

	adminMutationTTL = 24 * time.Hour
	// Switches and resets move money routing; a retried request days later
	// must still not repeat them.
	ledgerMutationTTL = 7 * 24 * time.Hour
)

// adminOperation is one admin mutation that requires an Idempotency-Key.
type adminOperation struct {
	name    string
	method  string
	pattern string
	prefix  bool
	ttl     time.Duration
}

func (op adminOperation) matches(method, pattern string) bool {
	if op.method != method {
		return false
	}
	if op.prefix {
		return strings.HasPrefix(pattern, op.pattern)
	}
	return pattern == op.pattern
}

var adminOperations = []adminOperation{
	{name: "account.create", method: http.MethodPost, pattern: "/api/admin/v1/accounts", ttl: adminMutationTTL},
	{name: "rotation.auto", method: http.MethodPost, pattern: "/api/admin/v1/rotation/auto", ttl: adminMutationTTL},
	{name: "rotation.check", method: http.MethodPost, pattern: "/api/admin/v1/rotation/check", ttl: adminMutationTTL},
	{name: "rotation.resync", method: http.MethodPost, pattern: "/api/admin/v1/rotation/resync", ttl: adminMutationTTL},
	{name: "usage.recompute", method: http.MethodPost, pattern: "/api/admin/v1/usage/recompute", ttl: adminMutationTTL},
	{name: "rotation.switch", method: http.MethodPost, pattern: "/api/admin/v1/rotation/switch", ttl: ledgerMutationTTL},
	{name: "usage.reset", method: http.MethodPost, pattern: "/api/admin/v1/usage/reset", ttl: ledgerMutationTTL},
	{name: "resets.run", method: http.MethodPost, pattern: "/api/admin/v1/resets", prefix: true, ttl: ledgerMutationTTL},
}

func lookupAdminOperation(method, pattern string) (adminOperation, bool) {
	if pattern == "" {
		return adminOperation{}, false
	}
	for _, op := range adminOperations {
		if op.matches(method, pattern) {
			return op, true
		}
	}
	return adminOperation{}, false
}

type storedOutcome struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the first outcome of an admin mutation for repeated
// requests carrying the same Idempotency-Key from the same operator.
// Responses with a 5xx status are not stored, so an operator can retry a
// switch whose gateway sync failed.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := lookupAdminOperation(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required for "+op.name))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			key := store.IdempotencyKey(operationScope(ctx, op), clientKey)

			previous, err := loadOutcome(ctx, store, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if previous != nil {
				if previous.RequestHash != requestHash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				replayOutcome(w, previous)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.statusOrOK()
			if status >= http.StatusInternalServerError {
				return
			}
			outcome := storedOutcome{
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				ContentType: rec.Header().Get("Content-Type"),
				RequestHash: requestHash,
			}
			payload, err := json.Marshal(outcome)
			if err != nil {
				logError(ctx, logg, "idempotency.encode_failed", err)
				return
			}
			if _, err := store.SetNX(ctx, key, string(payload), op.ttl); err != nil {
				logError(ctx, logg, "idempotency.persist_failed", err)
			}
		})
	}
}

// operationScope keys stored outcomes per operator and operation so two
// admins reusing a client-generated key never see each other's results.
func operationScope(ctx context.Context, op adminOperation) string {
	subject := SubjectFromContext(ctx)
	if subject == "" {
		subject = "anonymous"
	}
	return strings.Join([]string{subject, op.name}, "|")
}

func loadOutcome(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*storedOutcome, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var outcome storedOutcome
	if err := json.Unmarshal([]byte(raw), &outcome); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &outcome, nil
}

func replayOutcome(w http.ResponseWriter, outcome *storedOutcome) {
	if outcome.ContentType != "" {
		w.Header().Set("Content-Type", outcome.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(outcome.Status)
	if decoded, err := base64.StdEncoding.DecodeString(outcome.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
