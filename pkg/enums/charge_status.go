package enums

// ChargeStatus is the normalized status a payment gateway reports for a charge.
// Unknown gateway statuses normalize to ChargeStatusUnknown and are treated
// as no-ops by reconciliation, never as failures.
type ChargeStatus string

const (
	ChargeStatusCreated  ChargeStatus = "created"
	ChargeStatusPending  ChargeStatus = "pending"
	ChargeStatusCaptured ChargeStatus = "captured"
	ChargeStatusFailed   ChargeStatus = "failed"
	ChargeStatusVoided   ChargeStatus = "voided"
	ChargeStatusUnknown  ChargeStatus = "unknown"
)

var validChargeStatuses = []ChargeStatus{
	ChargeStatusCreated,
	ChargeStatusPending,
	ChargeStatusCaptured,
	ChargeStatusFailed,
	ChargeStatusVoided,
	ChargeStatusUnknown,
}

// String implements fmt.Stringer.
func (c ChargeStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ChargeStatus.
func (c ChargeStatus) IsValid() bool {
	for _, candidate := range validChargeStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// NormalizeChargeStatus maps raw gateway status strings onto the closed set.
func NormalizeChargeStatus(value string) ChargeStatus {
	for _, candidate := range validChargeStatuses {
		if string(candidate) == value {
			return candidate
		}
	}
	return ChargeStatusUnknown
}
