package memory

import (
	"context"
	"errors"
	"testing"

	"votebot/contexts/channel-governance/governance-engine/domain/entities"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
	"votebot/contexts/channel-governance/governance-engine/ports"
)

func TestStoreEnforcesReferences(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if _, err := store.InsertPoll(ctx, entities.Poll{Description: "x", Creator: "ghost"}); !errors.Is(err, domainerrors.ErrReferenceMissing) {
		t.Fatalf("expected ErrReferenceMissing for unknown creator, got %v", err)
	}
	if err := store.InsertUser(ctx, entities.User{Identity: "alice", Privilege: entities.PrivilegeInvalid}); !errors.Is(err, domainerrors.ErrInvalidArgument) {
		t.Fatalf("expected INVALID privilege to be refused, got %v", err)
	}
	if err := store.InsertUser(ctx, entities.User{Identity: "alice", Privilege: entities.PrivilegeAdmin}); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if err := store.InsertUser(ctx, entities.User{Identity: "alice", Privilege: entities.PrivilegeUser}); !errors.Is(err, domainerrors.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	poll, err := store.InsertPoll(ctx, entities.Poll{Description: "x", Creator: "alice"})
	if err != nil {
		t.Fatalf("insert poll: %v", err)
	}
	if poll.ID != 1 || poll.Status != entities.PollStatusRunning {
		t.Fatalf("unexpected poll: %+v", poll)
	}
	if err := store.VetoPoll(ctx, poll.ID, "ghost", ""); !errors.Is(err, domainerrors.ErrReferenceMissing) {
		t.Fatalf("expected ErrReferenceMissing for unknown vetoer, got %v", err)
	}
	if err := store.InsertVote(ctx, entities.Vote{PollID: poll.ID, Voter: "ghost"}); !errors.Is(err, domainerrors.ErrReferenceMissing) {
		t.Fatalf("expected ErrReferenceMissing for unknown voter, got %v", err)
	}
}

func TestStoreVoteKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.InsertUser(ctx, entities.User{Identity: "alice", Privilege: entities.PrivilegeAdmin})
	_ = store.InsertUser(ctx, entities.User{Identity: "bob", Privilege: entities.PrivilegeUser})
	first, _ := store.InsertPoll(ctx, entities.Poll{Description: "first", Creator: "alice"})
	second, _ := store.InsertPoll(ctx, entities.Poll{Description: "second", Creator: "alice"})

	vote := entities.Vote{PollID: first.ID, Voter: "bob", Decision: entities.DecisionYes}
	if err := store.InsertVote(ctx, vote); err != nil {
		t.Fatalf("insert vote: %v", err)
	}
	if err := store.InsertVote(ctx, vote); !errors.Is(err, domainerrors.ErrVoteExists) {
		t.Fatalf("expected ErrVoteExists, got %v", err)
	}
	if err := store.InsertVote(ctx, entities.Vote{PollID: second.ID, Voter: "bob", Decision: entities.DecisionNo}); err != nil {
		t.Fatalf("vote on second poll: %v", err)
	}
	if err := store.UpdateVote(ctx, entities.Vote{PollID: first.ID, Voter: "alice"}); !errors.Is(err, domainerrors.ErrVoteNotFound) {
		t.Fatalf("expected ErrVoteNotFound, got %v", err)
	}

	votes, _ := store.ListVotes(ctx, first.ID)
	if len(votes) != 1 || votes[0].Decision != entities.DecisionYes {
		t.Fatalf("unexpected votes: %+v", votes)
	}
	polls, _ := store.ListPolls(ctx, ports.PollFilter{Limit: 1})
	if len(polls) != 1 || polls[0].ID != second.ID {
		t.Fatalf("expected newest poll first, got %+v", polls)
	}
}

func TestFactoryReopensClosedStore(t *testing.T) {
	ctx := context.Background()
	factory := NewFactory()
	first, _ := factory.OpenChannel(ctx, "#Gov")
	same, _ := factory.OpenChannel(ctx, "#gov")
	if first != same {
		t.Fatalf("expected the same store for case variants")
	}
	_ = first.Close()
	fresh, _ := factory.OpenChannel(ctx, "#gov")
	if fresh == first {
		t.Fatalf("expected a new store after close")
	}
}
