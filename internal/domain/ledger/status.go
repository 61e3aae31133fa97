package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/claimdesk/expense-ledger/internal/domain/errors"
)

// ModifyFields carries the overwritable fields of a modify command. A nil
// pointer leaves the field untouched.
type ModifyFields struct {
	Date       *string          `json:"date,omitempty"`
	Department *string          `json:"department,omitempty"`
	Item       *string          `json:"item,omitempty"`
	Note       *string          `json:"note,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
}

// The transition rules below are the approval state machine. Every rejected
// transition returns a typed error without mutating the entry; there are no
// silent no-ops.

// ApplyApprove transitions Pending or Modified to Approved.
func ApplyApprove(e *Entry, approver string, now time.Time) error {
	switch e.Status {
	case StatusDeleted:
		return errors.NewStateError("entry has been deleted").WithDetail("entryId", e.ID)
	case StatusApproved:
		return errors.NewConflictError("entry is already approved").WithDetail("entryId", e.ID)
	}
	e.Status = StatusApproved
	e.Approver = approver
	e.ApprovedAt = &now
	return nil
}

// ApplyModify overwrites fields in place. Modifying a deleted entry is
// rejected. An approved entry stays approved so its amount remains counted;
// the modification is recorded on the modifier fields. Non-approved entries
// transition to Modified and need approval again.
func ApplyModify(e *Entry, fields ModifyFields, modifier string, now time.Time) error {
	if e.Status == StatusDeleted {
		return errors.NewStateError("entry has been deleted").WithDetail("entryId", e.ID)
	}
	if fields.Amount != nil {
		if fields.Amount.IsNegative() {
			return errors.NewValidationError(fmt.Sprintf("amount must not be negative: %s", fields.Amount))
		}
		e.Amount = *fields.Amount
	}
	if fields.Date != nil {
		e.Date = *fields.Date
	}
	if fields.Department != nil {
		e.Department = *fields.Department
	}
	if fields.Item != nil {
		e.Item = *fields.Item
	}
	if fields.Note != nil {
		e.Note = *fields.Note
	}
	if e.Status != StatusApproved {
		e.Status = StatusModified
	}
	e.Modifier = modifier
	e.ModifiedAt = &now
	return nil
}

// ApplyDelete transitions any non-deleted entry to Deleted. The record stays
// in the daily document for audit purposes.
func ApplyDelete(e *Entry, deleter string, now time.Time) error {
	if e.Status == StatusDeleted {
		return errors.NewStateError("entry is already deleted").WithDetail("entryId", e.ID)
	}
	e.Status = StatusDeleted
	e.Deleter = deleter
	e.DeletedAt = &now
	return nil
}
