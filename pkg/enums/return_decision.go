package enums

import "fmt"

// ReturnDecision is the action an admin takes on a pending return.
type ReturnDecision string

const (
	ReturnDecisionApprove ReturnDecision = "approve"
	ReturnDecisionReject  ReturnDecision = "reject"
)

// Status maps the decision onto the resulting return status.
func (d ReturnDecision) Status() ReturnStatus {
	if d == ReturnDecisionApprove {
		return ReturnStatusApproved
	}
	return ReturnStatusRejected
}

// HistoryLabel is the entry recorded on the linked order.
func (d ReturnDecision) HistoryLabel() string {
	if d == ReturnDecisionApprove {
		return "return approved"
	}
	return "return rejected"
}

// ParseReturnDecision converts raw input into a ReturnDecision.
func ParseReturnDecision(value string) (ReturnDecision, error) {
	switch ReturnDecision(value) {
	case ReturnDecisionApprove, ReturnDecisionReject:
		return ReturnDecision(value), nil
	}
	return "", fmt.Errorf("invalid return action %q", value)
}
