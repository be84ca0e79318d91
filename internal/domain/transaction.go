package domain

type TransactionStatus string

const (
	StatusActive            TransactionStatus = "Active"
	StatusUnderContract     TransactionStatus = "Under Contract"
	StatusContingencyPeriod TransactionStatus = "Contingency Period"
	StatusClearToClose      TransactionStatus = "Clear to Close"
	StatusClosed            TransactionStatus = "Closed"
	StatusCancelled         TransactionStatus = "Cancelled"
)

var TransactionStatuses = []TransactionStatus{
	StatusActive,
	StatusUnderContract,
	StatusContingencyPeriod,
	StatusClearToClose,
	StatusClosed,
	StatusCancelled,
}

type Phase string

const (
	PhasePreContract   Phase = "pre_contract"
	PhaseUnderContract Phase = "under_contract"
	PhaseClosing       Phase = "closing"
	PhaseClosed        Phase = "closed"
)

// PhaseOf maps a transaction status onto its UI phase.
func PhaseOf(status TransactionStatus) Phase {
	switch status {
	case StatusUnderContract, StatusContingencyPeriod:
		return PhaseUnderContract
	case StatusClearToClose:
		return PhaseClosing
	case StatusClosed, StatusCancelled:
		return PhaseClosed
	default:
		return PhasePreContract
	}
}
