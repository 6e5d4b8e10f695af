package session

import "errors"

var (
	ErrNotHost         = errors.New("only the host can do that")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidVote     = errors.New("invalid vote value")
	ErrNoActiveRound   = errors.New("no active voting round")
	ErrMustRevealFirst = errors.New("reveal votes first")
	ErrCannotKickSelf  = errors.New("cannot kick yourself")
	ErrDuplicateName   = errors.New("name already taken in this room")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoundInProgress = errors.New("a round is already in progress")
	ErrNotParticipant  = errors.New("not a participant of this room")
	ErrStorage         = errors.New("could not save changes, try again")
	ErrUnknownMessage  = errors.New("unknown message type")

	errRoomClosed = errors.New("room closed")
)

// hostOnlyError names the action a non-host tried; it matches ErrNotHost.
type hostOnlyError struct {
	action string
}

func (e hostOnlyError) Error() string {
	return "only the host can " + e.action
}

func (e hostOnlyError) Is(target error) bool {
	return target == ErrNotHost
}
