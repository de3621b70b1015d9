package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"votebot/contexts/channel-governance/governance-engine/domain/entities"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
	"votebot/contexts/channel-governance/governance-engine/ports"
)

type voteKey struct {
	pollID int64
	voter  string
}

// Store is an in-process channel namespace with the same key and reference
// rules as the durable adapters.
type Store struct {
	mu sync.RWMutex

	users  map[string]entities.User
	polls  map[int64]entities.Poll
	votes  map[voteKey]entities.Vote
	nextID int64
	closed bool
}

func NewStore() *Store {
	return &Store{
		users: make(map[string]entities.User),
		polls: make(map[int64]entities.Poll),
		votes: make(map[voteKey]entities.Vote),
	}
}

func (s *Store) GetPrivilege(_ context.Context, identity string) (entities.Privilege, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[identity]
	if !ok {
		return entities.PrivilegeInvalid, nil
	}
	return user.Privilege, nil
}

func (s *Store) InsertUser(_ context.Context, user entities.User) error {
	if !user.Privilege.Storable() || strings.TrimSpace(user.Identity) == "" {
		return domainerrors.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Identity]; exists {
		return domainerrors.ErrUserExists
	}
	s.users[user.Identity] = user
	return nil
}

func (s *Store) UpdatePrivilege(_ context.Context, identity string, privilege entities.Privilege) error {
	if !privilege.Storable() {
		return domainerrors.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[identity]
	if !ok {
		return domainerrors.ErrUserNotFound
	}
	user.Privilege = privilege
	s.users[identity] = user
	return nil
}

func (s *Store) CountActive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, user := range s.users {
		if user.Privilege.IsActive() {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListUsers(_ context.Context) ([]entities.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.User, 0, len(s.users))
	for _, user := range s.users {
		items = append(items, user)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Identity < items[j].Identity
	})
	return items, nil
}

func (s *Store) InsertPoll(_ context.Context, poll entities.Poll) (entities.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[poll.Creator]; !ok {
		return entities.Poll{}, domainerrors.ErrReferenceMissing
	}
	s.nextID++
	poll.ID = s.nextID
	if poll.Status == "" {
		poll.Status = entities.PollStatusRunning
	}
	if poll.Duration <= 0 {
		poll.Duration = entities.DefaultPollDuration
	}
	s.polls[poll.ID] = poll
	return poll, nil
}

func (s *Store) GetPoll(_ context.Context, pollID int64) (entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	poll, ok := s.polls[pollID]
	if !ok {
		return entities.Poll{}, domainerrors.ErrPollNotFound
	}
	return poll, nil
}

func (s *Store) UpdatePollStatus(_ context.Context, pollID int64, status entities.PollStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[pollID]
	if !ok {
		return domainerrors.ErrPollNotFound
	}
	poll.Status = status
	s.polls[pollID] = poll
	return nil
}

func (s *Store) VetoPoll(_ context.Context, pollID int64, vetoedBy string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[pollID]
	if !ok {
		return domainerrors.ErrPollNotFound
	}
	if _, ok := s.users[vetoedBy]; !ok {
		return domainerrors.ErrReferenceMissing
	}
	poll.Status = entities.PollStatusVetoed
	poll.VetoedBy = vetoedBy
	poll.VetoReason = reason
	s.polls[pollID] = poll
	return nil
}

func (s *Store) ListPolls(_ context.Context, filter ports.PollFilter) ([]entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Poll, 0, len(s.polls))
	for _, poll := range s.polls {
		if filter.Status != "" && poll.Status != filter.Status {
			continue
		}
		items = append(items, poll)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ID > items[j].ID
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (s *Store) GetVote(_ context.Context, pollID int64, voter string) (entities.Vote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vote, ok := s.votes[voteKey{pollID: pollID, voter: voter}]
	return vote, ok, nil
}

func (s *Store) InsertVote(_ context.Context, vote entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.polls[vote.PollID]; !ok {
		return domainerrors.ErrReferenceMissing
	}
	if _, ok := s.users[vote.Voter]; !ok {
		return domainerrors.ErrReferenceMissing
	}
	key := voteKey{pollID: vote.PollID, voter: vote.Voter}
	if _, exists := s.votes[key]; exists {
		return domainerrors.ErrVoteExists
	}
	s.votes[key] = vote
	return nil
}

func (s *Store) UpdateVote(_ context.Context, vote entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{pollID: vote.PollID, voter: vote.Voter}
	if _, exists := s.votes[key]; !exists {
		return domainerrors.ErrVoteNotFound
	}
	s.votes[key] = vote
	return nil
}

func (s *Store) ListVotes(_ context.Context, pollID int64) ([]entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Vote, 0)
	for key, vote := range s.votes {
		if key.pollID == pollID {
			items = append(items, vote)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Voter < items[j].Voter
	})
	return items, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Factory hands out one Store per channel and keeps them for inspection.
type Factory struct {
	mu     sync.Mutex
	stores map[string]*Store
}

func NewFactory() *Factory {
	return &Factory{stores: make(map[string]*Store)}
}

func (f *Factory) OpenChannel(_ context.Context, channel string) (ports.ChannelStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(channel))
	store, ok := f.stores[key]
	if !ok || store.Closed() {
		store = NewStore()
		f.stores[key] = store
	}
	return store, nil
}

func (f *Factory) Store(channel string) (*Store, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	store, ok := f.stores[strings.ToLower(strings.TrimSpace(channel))]
	return store, ok
}

var _ ports.ChannelStore = (*Store)(nil)
var _ ports.StoreFactory = (*Factory)(nil)
