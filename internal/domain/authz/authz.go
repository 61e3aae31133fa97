package authz

// Action identifies a guarded ledger transition.
type Action string

const (
	ActionApprove Action = "approve"
	ActionModify  Action = "modify"
	ActionDelete  Action = "delete"
)

// Capability is an opaque permission grant. Resolving which human role maps
// to which capability happens outside this subsystem.
type Capability string

const (
	CapabilityApprover  Capability = "APPROVER"
	CapabilitySubmitter Capability = "SUBMITTER"
)

// Subject is the acting user plus the capabilities the surrounding platform
// resolved for them.
type Subject struct {
	Actor        string
	Capabilities []Capability
}

// Has reports whether the subject carries the given capability.
func (s Subject) Has(c Capability) bool {
	for _, got := range s.Capabilities {
		if got == c {
			return true
		}
	}
	return false
}

// Gate decides whether a subject may perform an action on an entry.
// requester is the entry's original submitter.
type Gate interface {
	CanPerform(action Action, subject Subject, requester string) bool
}

// CapabilityGate is the default gate: approving always needs the approver
// capability; modify and delete are open to approvers and to the original
// requester.
type CapabilityGate struct{}

// NewCapabilityGate creates the default capability gate.
func NewCapabilityGate() CapabilityGate {
	return CapabilityGate{}
}

func (CapabilityGate) CanPerform(action Action, subject Subject, requester string) bool {
	switch action {
	case ActionApprove:
		return subject.Has(CapabilityApprover)
	case ActionModify, ActionDelete:
		return subject.Has(CapabilityApprover) || subject.Actor == requester
	}
	return false
}
