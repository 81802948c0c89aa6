// Package lifecycle is the state machine shared by swap-requests and
// course-requests.
//
// THE TABLE IS THE RULEBOOK:
// Every legal move is one row of (current status, actor role, target status).
// Anything not in the table is refused. The service layer asks Check before it
// writes anything, and the repository re-checks the current status with a
// compare-and-set so two concurrent moves cannot both succeed.
package lifecycle

import (
	"fmt"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/model"
)

type move struct {
	from model.RequestStatus
	role model.PartyRole
	to   model.RequestStatus
}

var transitions = map[move]bool{
	{model.StatusPending, model.RoleRecipient, model.StatusAccepted}:  true,
	{model.StatusPending, model.RoleRecipient, model.StatusRejected}:  true,
	{model.StatusPending, model.RoleInitiator, model.StatusCancelled}: true,
	{model.StatusAccepted, model.RoleInitiator, model.StatusCompleted}: true,
	{model.StatusAccepted, model.RoleRecipient, model.StatusCompleted}: true,
	{model.StatusAccepted, model.RoleInitiator, model.StatusCancelled}: true,
}

// Allowed reports whether role may move a request from current to target.
func Allowed(current model.RequestStatus, role model.PartyRole, target model.RequestStatus) bool {
	return transitions[move{current, role, target}]
}

// Check classifies a requested transition.
//
//	outsider                            → Forbidden
//	unknown target                      → Validation
//	allowed for this role               → nil
//	allowed only for the other party    → Forbidden
//	not reachable from current at all   → InvalidState
func Check(current model.RequestStatus, role model.PartyRole, target model.RequestStatus) error {
	if role != model.RoleInitiator && role != model.RoleRecipient {
		return apperror.Forbidden("only the parties to a request may change it")
	}
	if !target.Valid() {
		return apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", target))
	}
	if Allowed(current, role, target) {
		return nil
	}
	if other := otherRole(role); Allowed(current, other, target) {
		return apperror.Forbidden(fmt.Sprintf("only the %s may move a %s request to %s", other, current, target))
	}
	if current.Terminal() {
		return apperror.InvalidState(fmt.Sprintf("request is already %s", current))
	}
	return apperror.InvalidState(fmt.Sprintf("cannot move a %s request to %s", current, target))
}

// Targets lists the statuses role may move a request to from current.
// Clients use it to decide which actions to offer.
func Targets(current model.RequestStatus, role model.PartyRole) []model.RequestStatus {
	var out []model.RequestStatus
	for _, to := range []model.RequestStatus{
		model.StatusAccepted, model.StatusRejected, model.StatusCompleted, model.StatusCancelled,
	} {
		if Allowed(current, role, to) {
			out = append(out, to)
		}
	}
	return out
}

func otherRole(role model.PartyRole) model.PartyRole {
	if role == model.RoleInitiator {
		return model.RoleRecipient
	}
	return model.RoleInitiator
}
