package lifecycle

import "github.com/iliyamo/class-reservation/internal/model"

type edgeKey struct {
	role   model.Role
	from   model.Status
	action model.Action
}

// transitions is the complete set of legal moves.  Anything missing is
// forbidden.  Applying is not listed: it is a re-entry handled by the
// admission path, not a transition.
var transitions = map[edgeKey]model.Status{
	{model.RoleLearner, model.StatusApplied, model.ActionCancel}:                 model.StatusCancelled,
	{model.RoleLearner, model.StatusApproved, model.ActionCancelRequest}:         model.StatusCancelRequest,
	{model.RoleInstructor, model.StatusApplied, model.ActionApprove}:             model.StatusApproved,
	{model.RoleInstructor, model.StatusApplied, model.ActionReject}:              model.StatusRejected,
	{model.RoleInstructor, model.StatusCancelRequest, model.ActionCancelApprove}: model.StatusCancelled,
	{model.RoleInstructor, model.StatusCancelRequest, model.ActionCancelDeny}:    model.StatusApproved,
	{model.RoleInstructor, model.StatusApproved, model.ActionCancel}:             model.StatusCancelled,
}

// Next returns the status reached when role performs action on a
// reservation currently in from.  Unlisted combinations yield a
// *TransitionError.
func Next(role model.Role, from model.Status, action model.Action) (model.Status, error) {
	if to, ok := transitions[edgeKey{role, from, action}]; ok {
		return to, nil
	}
	return "", &TransitionError{Role: role, From: from, Action: action}
}

// Allowed lists the actions role may perform from status, in a stable
// order.  Used to describe the available moves to clients.
func Allowed(role model.Role, from model.Status) []model.Action {
	order := []model.Action{
		model.ActionApprove, model.ActionReject, model.ActionCancel,
		model.ActionCancelRequest, model.ActionCancelApprove, model.ActionCancelDeny,
	}
	out := make([]model.Action, 0, 2)
	for _, a := range order {
		if _, ok := transitions[edgeKey{role, from, a}]; ok {
			out = append(out, a)
		}
	}
	return out
}

// IsChangeAction reports whether a is an action accepted by the status
// change path (everything but apply).
func IsChangeAction(a model.Action) bool {
	switch a {
	case model.ActionApprove, model.ActionReject, model.ActionCancel,
		model.ActionCancelRequest, model.ActionCancelApprove, model.ActionCancelDeny:
		return true
	}
	return false
}
