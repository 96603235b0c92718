package borrow

import (
	"time"
)

// Action is an operation that moves a borrow request between states.
type Action string

const (
	ActionRequest       Action = "request"
	ActionBorrowDirect  Action = "borrow"
	ActionApprove       Action = "approve"
	ActionReject        Action = "reject"
	ActionCancel        Action = "cancel"
	ActionConfirmBorrow Action = "confirm-borrow"
	ActionConfirmReturn Action = "confirm-return"
	ActionReturn        Action = "return"
)

// StockEffect is what a transition does to the book's available copies.
type StockEffect int

const (
	StockNone StockEffect = iota
	StockTake
	StockGive
)

// Transition is the outcome of a successful Decide.
type Transition struct {
	To     Status
	Effect StockEffect
}

type rule struct {
	from   Status
	action Action
	to     Status
	effect StockEffect
}

// statusNone is the "from" state of actions that create a request.
const statusNone Status = ""

var rules = []rule{
	{statusNone, ActionRequest, StatusPending, StockNone},
	{statusNone, ActionBorrowDirect, StatusBorrowed, StockTake},
	{StatusPending, ActionApprove, StatusApproved, StockNone},
	{StatusPending, ActionReject, StatusRejected, StockNone},
	{StatusPending, ActionCancel, StatusCancelled, StockNone},
	{StatusApproved, ActionConfirmBorrow, StatusBorrowed, StockTake},
	{StatusBorrowed, ActionConfirmReturn, StatusReturned, StockGive},
	{StatusBorrowed, ActionReturn, StatusReturned, StockGive},
}

var actionRoles = map[Action]Role{
	ActionRequest:       RoleMember,
	ActionBorrowDirect:  RoleMember,
	ActionApprove:       RoleAdmin,
	ActionReject:        RoleAdmin,
	ActionCancel:        RoleMember,
	ActionConfirmBorrow: RoleAdmin,
	ActionConfirmReturn: RoleAdmin,
	ActionReturn:        RoleMember,
}

// Decide checks whether role may apply action to a request in state from.
// Role is checked before state, so an actor never learns more than
// ErrForbidden about actions it cannot take.
func Decide(from Status, action Action, role Role) (Transition, error) {
	required, ok := actionRoles[action]
	if !ok {
		return Transition{}, ErrInvalidTransition
	}
	if role != required {
		return Transition{}, ErrForbidden
	}
	for _, r := range rules {
		if r.from == from && r.action == action {
			return Transition{To: r.to, Effect: r.effect}, nil
		}
	}
	return Transition{}, ErrInvalidTransition
}

// AvailableActions lists what role can do next with a request in status.
func AvailableActions(status Status, role Role) []Action {
	actions := []Action{}
	if status == statusNone {
		return actions
	}
	for _, r := range rules {
		if r.from == status && actionRoles[r.action] == role {
			actions = append(actions, r.action)
		}
	}
	return actions
}

// advance moves r to t.To and stamps the matching date. Dates only ever get
// filled in, never cleared.
func (r *Request) advance(t Transition, action Action, at time.Time, dueDate time.Time, notes string) {
	r.Status = t.To
	r.UpdatedAt = at
	switch action {
	case ActionApprove:
		r.ApprovalDate = &at
	case ActionConfirmBorrow:
		r.BorrowDate = &at
		r.DueDate = &dueDate
	case ActionConfirmReturn, ActionReturn:
		r.ReturnDate = &at
	}
	if notes != "" {
		r.AdminNotes = notes
	}
}
