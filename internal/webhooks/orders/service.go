// Package orderwebhook applies storefront order events to the usage accountant.
package orderwebhook

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payswitch-backend/internal/usage"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
)

const (
	EventOrderCreated   = "order.created"
	EventOrderCompleted = "order.completed"
	EventOrderRefunded  = "order.refunded"
)

type usageService interface {
	OnOrderCreated(ctx context.Context, orderID, paymentMethod string) (*models.OrderAccountAssociation, error)
	OnOrderCompleted(ctx context.Context, order usage.OrderCompletion) (*usage.Result, error)
	OnRefund(ctx context.Context, refund usage.Refund) (*usage.Result, error)
}

type ServiceParams struct {
	Usage  usageService
	Logger *logger.Logger
}

type Service struct {
	usage usageService
	logg  *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Usage == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "usage service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{usage: params.Usage, logg: logg}, nil
}

// OrderEvent is the signed payload the storefront posts for order lifecycle changes.
type OrderEvent struct {
	EventID string         `json:"event_id"`
	Type    string         `json:"type"`
	Data    OrderEventData `json:"data"`
}

type OrderEventData struct {
	OrderID       string          `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	RefundID      string          `json:"refund_id,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// HandleEvent dispatches an order event. Unknown event types are acknowledged with a nil result.
func (s *Service) HandleEvent(ctx context.Context, event *OrderEvent) (*usage.Result, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order event required")
	}
	orderID := strings.TrimSpace(event.Data.OrderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id missing")
	}
	ctx = s.logg.WithOrderID(ctx, orderID)

	switch strings.ToLower(strings.TrimSpace(event.Type)) {
	case EventOrderCreated:
		assoc, err := s.usage.OnOrderCreated(ctx, orderID, event.Data.PaymentMethod)
		if err != nil {
			return nil, err
		}
		if assoc == nil {
			return &usage.Result{Status: usage.StatusIgnored, OrderID: orderID}, nil
		}
		accountID := assoc.AccountID
		return &usage.Result{Status: usage.StatusApplied, OrderID: orderID, AccountID: &accountID}, nil
	case EventOrderCompleted:
		return s.usage.OnOrderCompleted(ctx, usage.OrderCompletion{
			OrderID:       orderID,
			Amount:        event.Data.Amount,
			PaymentMethod: event.Data.PaymentMethod,
		})
	case EventOrderRefunded:
		return s.usage.OnRefund(ctx, usage.Refund{
			OrderID:  orderID,
			RefundID: strings.TrimSpace(event.Data.RefundID),
			Amount:   event.Data.Amount,
			Reason:   event.Data.Reason,
		})
	default:
		s.logg.Debug(s.logg.WithField(ctx, "event_type", event.Type), "order webhook event ignored")
		return nil, nil
	}
}
