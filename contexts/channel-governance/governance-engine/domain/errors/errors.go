package errors

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotPollCreator      = errors.New("only the creator of a poll can cancel it")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnknownPrivilege    = errors.New("unknown privilege")
	ErrIdentityUnresolved  = errors.New("identity could not be resolved")
	ErrUserExists          = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrPollNotFound        = errors.New("poll not found")
	ErrPollNotRunning      = errors.New("poll is not running")
	ErrVoteExists          = errors.New("vote already exists")
	ErrVoteNotFound        = errors.New("vote not found")
	ErrReferenceMissing    = errors.New("referenced user or poll does not exist")
	ErrStoreFailure        = errors.New("store failure")
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	ErrNothingToConfirm    = errors.New("nothing to confirm")
	ErrChannelClosed       = errors.New("channel governance is closed")
	ErrChannelNotFound     = errors.New("channel not found")
)
