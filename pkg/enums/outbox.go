package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateMerchantAccount OutboxAggregateType = "merchant_account"
	AggregateResetRun        OutboxAggregateType = "reset_run"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateMerchantAccount,
	AggregateResetRun,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventAccountSwitched   OutboxEventType = "account_switched"
	EventMonthlyReset      OutboxEventType = "monthly_reset"
	EventAllocationFailed  OutboxEventType = "allocation_failed"
	EventGatewaySyncFailed OutboxEventType = "gateway_sync_failed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventAccountSwitched,
	EventMonthlyReset,
	EventAllocationFailed,
	EventGatewaySyncFailed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
