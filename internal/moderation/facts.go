package moderation

import "fmt"

// OwnerFacts is a snapshot of the ownership state of a candidate owner,
// gathered by the store at decision time. Each field carries the name of
// the conflicting organization, or "" when there is no conflict.
type OwnerFacts struct {
	// ActiveOrg is an active, approved organization the candidate
	// already owns.
	ActiveOrg string
	// PendingTransferOrg is an organization with a pending transfer
	// request naming the candidate as new owner.
	PendingTransferOrg string
	// UnapprovedOrg is an organization the candidate owns that is still
	// awaiting first-time approval.
	UnapprovedOrg string
}

// CheckOwnership decides whether assigning ownership to the candidate is
// currently legal. It is evaluated at submission time and re-evaluated
// inside the approval transaction, so a fact that changed in between
// aborts the approval with no partial state.
func CheckOwnership(f OwnerFacts) error {
	if f.ActiveOrg != "" {
		return &ConflictError{Reason: fmt.Sprintf(
			"the user already owns the organization %q; a user may own only one organization", f.ActiveOrg)}
	}
	if f.PendingTransferOrg != "" {
		return &ConflictError{Reason: fmt.Sprintf(
			"the user already has a pending ownership-transfer request for %q; wait until it is reviewed", f.PendingTransferOrg)}
	}
	if f.UnapprovedOrg != "" {
		return &ConflictError{Reason: fmt.Sprintf(
			"the user has a pending application to create the organization %q; wait until it is reviewed", f.UnapprovedOrg)}
	}
	return nil
}
