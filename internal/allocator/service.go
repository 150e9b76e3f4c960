package allocator

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/payswitch-backend/pkg/errors"
)

type accountReader interface {
	List(ctx context.Context) ([]models.MerchantAccount, error)
	GetActive(ctx context.Context) (*models.MerchantAccount, error)
}

// Service answers allocation questions against the live ledger.
type Service struct {
	accounts accountReader
}

func NewService(accounts accountReader) (*Service, error) {
	if accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account reader required")
	}
	return &Service{accounts: accounts}, nil
}

// SelectAccount returns the account that should process amount.
func (s *Service) SelectAccount(ctx context.Context, amount decimal.Decimal) (*Selection, error) {
	if amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	selection, ok := Select(accounts, amount)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNoAccountsAvailable, "no merchant accounts configured")
	}
	return &selection, nil
}

// CanHandle reports whether some account has headroom for amount or a default exists.
func (s *Service) CanHandle(ctx context.Context, amount decimal.Decimal) (bool, error) {
	selection, err := s.SelectAccount(ctx, amount)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNoAccountsAvailable) {
			return false, nil
		}
		return false, err
	}
	return selection.CanHandle(), nil
}

// WouldExceedLimit reports whether charging amount on the active account crosses its
// limit. Without an active account the answer is always true.
func (s *Service) WouldExceedLimit(ctx context.Context, amount decimal.Decimal) (bool, error) {
	active, err := s.accounts.GetActive(ctx)
	if err != nil {
		return true, err
	}
	if active == nil {
		return true, nil
	}
	return active.MonthlyUsage.Add(amount).GreaterThan(active.MonthlyLimit), nil
}
