package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"votebot/contexts/channel-governance/governance-engine/application/commands"
	"votebot/contexts/channel-governance/governance-engine/application/queries"
	"votebot/contexts/channel-governance/governance-engine/domain/entities"
	httptransport "votebot/contexts/channel-governance/governance-engine/transport/http"
)

type Handler struct {
	Polls  queries.PollQueries
	Logger *slog.Logger
}

func (h Handler) HealthHandler(ctx context.Context) (httptransport.HealthResponse, error) {
	items, err := h.Polls.ListChannels(ctx)
	if err != nil {
		return httptransport.HealthResponse{}, err
	}
	return httptransport.HealthResponse{
		Status:   "ok",
		Channels: len(items),
	}, nil
}

func (h Handler) ListChannelsHandler(ctx context.Context) (httptransport.ListChannelsResponse, error) {
	items, err := h.Polls.ListChannels(ctx)
	if err != nil {
		return httptransport.ListChannelsResponse{}, err
	}
	resp := httptransport.ListChannelsResponse{
		Items: make([]httptransport.ChannelItem, 0, len(items)),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, httptransport.ChannelItem{
			Channel:              item.Channel,
			Prefix:               item.Prefix,
			ActiveUsers:          item.ActiveUsers,
			PendingConfirmations: item.PendingConfirmations,
			RunningPolls:         item.RunningPolls,
		})
	}
	return resp, nil
}

func (h Handler) ListPollsHandler(
	ctx context.Context,
	channel string,
	req httptransport.ListPollsRequest,
) (httptransport.ListPollsResponse, error) {
	polls, err := h.Polls.ListPolls(ctx, channel, req.Status, req.Limit)
	if err != nil {
		return httptransport.ListPollsResponse{}, err
	}
	resp := httptransport.ListPollsResponse{
		Channel: channel,
		Items:   make([]httptransport.PollItem, 0, len(polls)),
	}
	for _, poll := range polls {
		resp.Items = append(resp.Items, mapPoll(poll))
	}
	return resp, nil
}

func (h Handler) PollDetailHandler(
	ctx context.Context,
	channel string,
	pollID int64,
) (httptransport.PollDetailResponse, error) {
	detail, err := h.Polls.PollDetail(ctx, channel, pollID)
	if err != nil {
		return httptransport.PollDetailResponse{}, err
	}
	votes := make([]httptransport.VoteItem, 0, len(detail.Votes))
	for _, vote := range detail.Votes {
		votes = append(votes, httptransport.VoteItem{
			Voter:    vote.Voter,
			Decision: string(vote.Decision),
			Comment:  commands.Shorten(vote.Comment, commands.CommentDisplayWidth),
		})
	}
	return httptransport.PollDetailResponse{
		Channel: channel,
		Poll:    mapPoll(detail.Poll),
		Votes:   votes,
		Counts: httptransport.DecisionCounts{
			Yes:     detail.Tally.Yes,
			No:      detail.Tally.No,
			Abstain: detail.Tally.Abstain,
			None:    detail.Tally.None,
			Total:   len(detail.Votes),
		},
	}, nil
}

func mapPoll(poll entities.Poll) httptransport.PollItem {
	return httptransport.PollItem{
		PollID:      poll.ID,
		Description: poll.Description,
		Creator:     poll.Creator,
		Status:      string(poll.Status),
		CreatedAt:   poll.CreatedAt.UTC().Format(time.RFC3339),
		EndsAt:      poll.EndsAt().UTC().Format(time.RFC3339),
		VetoedBy:    poll.VetoedBy,
		VetoReason:  poll.VetoReason,
	}
}
