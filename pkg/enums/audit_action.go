package enums

// AuditAction names a state-changing admin/system action in the audit log.
type AuditAction string

const (
	AuditActionOrderCreated        AuditAction = "order.created"
	AuditActionOrderTransitioned   AuditAction = "order.transitioned"
	AuditActionOrderMatched        AuditAction = "order.matched"
	AuditActionClosingSubmitted    AuditAction = "closing.submitted"
	AuditActionClosingApproved     AuditAction = "closing.approved"
	AuditActionClosingCorrected    AuditAction = "closing.corrected"
	AuditActionSettlementApproved  AuditAction = "settlement.approved"
	AuditActionSettlementPaid      AuditAction = "settlement.paid"
	AuditActionSettlementCancelled AuditAction = "settlement.cancelled"
	AuditActionSettlementDisputed  AuditAction = "settlement.disputed"
	AuditActionDisputeResolved     AuditAction = "dispute.resolved"
	AuditActionDepositPaid         AuditAction = "payment.deposit"
	AuditActionBalancePaid         AuditAction = "payment.balance"
)

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}
