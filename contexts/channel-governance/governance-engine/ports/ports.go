package ports

import (
	"context"
	"time"

	"votebot/contexts/channel-governance/governance-engine/domain/entities"
)

// PrivilegeStore maps authenticated identities to stored privileges.
type PrivilegeStore interface {
	// GetPrivilege returns PrivilegeInvalid without error when no row exists.
	GetPrivilege(ctx context.Context, identity string) (entities.Privilege, error)
	InsertUser(ctx context.Context, user entities.User) error
	UpdatePrivilege(ctx context.Context, identity string, privilege entities.Privilege) error
	CountActive(ctx context.Context) (int, error)
	ListUsers(ctx context.Context) ([]entities.User, error)
}

// PollFilter narrows ListPolls. Zero value lists every poll.
type PollFilter struct {
	Status entities.PollStatus
	Limit  int
}

type PollStore interface {
	// InsertPoll persists a RUNNING poll and returns it with the id assigned
	// by the store.
	InsertPoll(ctx context.Context, poll entities.Poll) (entities.Poll, error)
	GetPoll(ctx context.Context, pollID int64) (entities.Poll, error)
	UpdatePollStatus(ctx context.Context, pollID int64, status entities.PollStatus) error
	VetoPoll(ctx context.Context, pollID int64, vetoedBy string, reason string) error
	ListPolls(ctx context.Context, filter PollFilter) ([]entities.Poll, error)
}

type VoteLedger interface {
	GetVote(ctx context.Context, pollID int64, voter string) (entities.Vote, bool, error)
	InsertVote(ctx context.Context, vote entities.Vote) error
	UpdateVote(ctx context.Context, vote entities.Vote) error
	ListVotes(ctx context.Context, pollID int64) ([]entities.Vote, error)
}

// ChannelStore is the storage namespace owned by a single channel.
type ChannelStore interface {
	PrivilegeStore
	PollStore
	VoteLedger
	Close() error
}

// StoreFactory opens (and initialises) the storage namespace of a channel.
type StoreFactory interface {
	OpenChannel(ctx context.Context, channel string) (ChannelStore, error)
}

// IdentityResolver maps a transient nickname to a stable account id.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, nick string) (string, bool, error)
}

// AdminChecker reports transport-level admin status, independent of stored
// privilege.
type AdminChecker interface {
	IsTransportAdmin(ctx context.Context, nick string) (bool, error)
}

// Messenger delivers outbound text. Delivery is fire-and-forget.
type Messenger interface {
	NotifyUser(ctx context.Context, target string, text string)
	Broadcast(ctx context.Context, channel string, text string)
}

// Transport bundles the collaborators the chat layer provides.
type Transport interface {
	IdentityResolver
	AdminChecker
	Messenger
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
