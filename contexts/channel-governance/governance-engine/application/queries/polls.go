package queries

import (
	"context"
	"strings"

	"votebot/contexts/channel-governance/governance-engine/application/channels"
	"votebot/contexts/channel-governance/governance-engine/application/commands"
	"votebot/contexts/channel-governance/governance-engine/domain/entities"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
	"votebot/contexts/channel-governance/governance-engine/ports"
)

type ChannelSummary struct {
	Channel              string
	Prefix               string
	ActiveUsers          int
	PendingConfirmations int
	RunningPolls         int
}

// PollDetail is a poll with its votes and raw per-decision counts.
type PollDetail struct {
	Poll  entities.Poll
	Votes []entities.Vote
	Tally entities.DecisionTally
}

// PollQueries serves read-only views over channels that are already open.
type PollQueries struct {
	Channels *channels.Registry
}

func (q PollQueries) ListChannels(ctx context.Context) ([]ChannelSummary, error) {
	engines := q.Channels.Engines()
	items := make([]ChannelSummary, 0, len(engines))
	for _, engine := range engines {
		running, err := engine.Store().ListPolls(ctx, ports.PollFilter{Status: entities.PollStatusRunning})
		if err != nil {
			return nil, err
		}
		items = append(items, ChannelSummary{
			Channel:              engine.Channel(),
			Prefix:               engine.Prefix(),
			ActiveUsers:          engine.ActiveUsers(),
			PendingConfirmations: engine.PendingConfirmations(),
			RunningPolls:         len(running),
		})
	}
	return items, nil
}

func (q PollQueries) ListPolls(ctx context.Context, channel string, status string, limit int) ([]entities.Poll, error) {
	engine, err := q.engine(channel)
	if err != nil {
		return nil, err
	}
	filter := ports.PollFilter{Limit: limit}
	if status = strings.ToUpper(strings.TrimSpace(status)); status != "" {
		parsed, ok := entities.ParsePollStatus(status)
		if !ok {
			return nil, domainerrors.ErrInvalidArgument
		}
		filter.Status = parsed
	}
	return engine.Store().ListPolls(ctx, filter)
}

func (q PollQueries) PollDetail(ctx context.Context, channel string, pollID int64) (PollDetail, error) {
	engine, err := q.engine(channel)
	if err != nil {
		return PollDetail{}, err
	}
	poll, err := engine.Store().GetPoll(ctx, pollID)
	if err != nil {
		return PollDetail{}, err
	}
	votes, err := engine.Store().ListVotes(ctx, pollID)
	if err != nil {
		return PollDetail{}, err
	}
	return PollDetail{
		Poll:  poll,
		Votes: votes,
		Tally: entities.TallyDecisions(votes),
	}, nil
}

func (q PollQueries) engine(channel string) (*commands.Engine, error) {
	engine, ok := q.Channels.Lookup(channel)
	if !ok {
		return nil, domainerrors.ErrChannelNotFound
	}
	return engine, nil
}
