package enums

import "strings"

// GatewayPaymentMethod identifies a checkout method served by the rotated gateway.
type GatewayPaymentMethod string

const (
	GatewayMethodNewebPay                  GatewayPaymentMethod = "newebpay"
	GatewayMethodNewebPayATM               GatewayPaymentMethod = "newebpay_atm"
	GatewayMethodNewebPayCreditCard        GatewayPaymentMethod = "newebpay_cc"
	GatewayMethodNewebPayCVS               GatewayPaymentMethod = "newebpay_cvs"
	GatewayMethodNewebPayWebATM            GatewayPaymentMethod = "newebpay_webatm"
	GatewayMethodNewebPayBarcode           GatewayPaymentMethod = "newebpay_barcode"
	GatewayMethodNewebPayCreditInstallment GatewayPaymentMethod = "newebpay_credit_installment"
)

var gatewayPaymentMethods = []GatewayPaymentMethod{
	GatewayMethodNewebPay,
	GatewayMethodNewebPayATM,
	GatewayMethodNewebPayCreditCard,
	GatewayMethodNewebPayCVS,
	GatewayMethodNewebPayWebATM,
	GatewayMethodNewebPayBarcode,
	GatewayMethodNewebPayCreditInstallment,
}

// IsValid reports whether the method is handled by the rotated gateway.
func (m GatewayPaymentMethod) IsValid() bool {
	normalized := GatewayPaymentMethod(strings.ToLower(strings.TrimSpace(string(m))))
	for _, candidate := range gatewayPaymentMethods {
		if candidate == normalized {
			return true
		}
	}
	return false
}

// IsGatewayPaymentMethod is a convenience wrapper for raw order payloads.
func IsGatewayPaymentMethod(value string) bool {
	return GatewayPaymentMethod(value).IsValid()
}
