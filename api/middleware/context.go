package middleware

import (
	"context"

	"github.com/angelmondragon/payswitch-backend/pkg/enums"
)

type contextKey string

const (
	ctxSubject contextKey = "admin_subject"
	ctxRole    contextKey = "admin_role"
)

// SubjectFromContext returns the operator identity carried by the admin token.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSubject).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.AdminRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.AdminRole); ok {
		return v
	}
	return ""
}

// WithAdmin injects the operator identity, used by Auth and by handler tests.
func WithAdmin(ctx context.Context, subject string, role enums.AdminRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxSubject, subject)
	return context.WithValue(ctx, ctxRole, role)
}
