package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilityGate(t *testing.T) {
	gate := NewCapabilityGate()
	boss := Subject{Actor: "boss", Capabilities: []Capability{CapabilityApprover}}
	alice := Subject{Actor: "alice", Capabilities: []Capability{CapabilitySubmitter}}

	tests := []struct {
		name      string
		action    Action
		subject   Subject
		requester string
		want      bool
	}{
		{"approver can approve", ActionApprove, boss, "alice", true},
		{"requester cannot approve own entry", ActionApprove, alice, "alice", false},
		{"approver can modify", ActionModify, boss, "alice", true},
		{"requester can modify own entry", ActionModify, alice, "alice", true},
		{"stranger cannot modify", ActionModify, alice, "bob", false},
		{"requester can delete own entry", ActionDelete, alice, "alice", true},
		{"stranger cannot delete", ActionDelete, alice, "bob", false},
		{"unknown action is denied", Action("export"), boss, "alice", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.CanPerform(tt.action, tt.subject, tt.requester))
		})
	}
}
