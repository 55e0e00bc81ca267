package groupbooking

import "errors"

var (
	ErrGroupFull            = errors.New("group booking is full")
	ErrAlreadyJoined        = errors.New("already a participant of this group booking")
	ErrGroupExpired         = errors.New("group booking has expired")
	ErrAlreadyPaid          = errors.New("participant has already paid")
	ErrQuorumNotMet         = errors.New("minimum number of participants not reached")
	ErrNotAllPaid           = errors.New("not every participant has paid")
	ErrNotParticipant       = errors.New("not a participant of this group booking")
	ErrInitiatorCannotLeave = errors.New("the initiator cannot leave, cancel the group booking instead")
)
