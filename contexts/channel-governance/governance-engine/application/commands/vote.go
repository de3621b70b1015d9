package commands

import (
	"context"
	"errors"

	"votebot/contexts/channel-governance/governance-engine/application/confirmations"
	"votebot/contexts/channel-governance/governance-engine/domain/entities"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
)

type VoteOutcome string

const (
	VoteRecorded   VoteOutcome = "recorded"
	VoteChanged    VoteOutcome = "changed"
	VoteDeclined   VoteOutcome = "declined"
	VoteSuperseded VoteOutcome = "superseded"
)

// CastVoteResult reports the final state of one vote cast. Previous is set
// whenever the voter already had a vote on the poll.
type CastVoteResult struct {
	Vote     entities.Vote
	Previous *entities.Vote
	Outcome  VoteOutcome
}

// CastVote records voter's decision on a RUNNING poll. A first vote is
// inserted directly; a re-vote asks the voter to confirm and waits for the
// answer or the confirmation timeout.
func (e *Engine) CastVote(
	ctx context.Context,
	voter string,
	pollID int64,
	decision entities.Decision,
	comment string,
) (CastVoteResult, error) {
	e.logger.Info("vote processing started", e.attrs(ctx, "governance_vote_started",
		"voter", voter,
		"poll_id", pollID,
		"decision", string(decision),
	)...)
	identity, privilege, err := e.privilegeOf(ctx, voter)
	if err != nil {
		e.notify(ctx, voter, "Error checking permissions, contact the admin")
		return CastVoteResult{}, err
	}
	if !privilege.IsActive() {
		e.logger.Info("vote denied", e.attrs(ctx, "governance_vote_denied",
			"voter", voter,
			"poll_id", pollID,
			"privilege", string(privilege),
		)...)
		e.notify(ctx, voter, "You are not allowed to vote")
		return CastVoteResult{}, domainerrors.ErrUnauthorized
	}
	if err := e.requireRunning(ctx, voter, pollID); err != nil {
		return CastVoteResult{}, err
	}

	vote := entities.Vote{
		PollID:   pollID,
		Voter:    identity,
		Decision: decision,
		Comment:  comment,
	}
	existing, found, err := e.store.GetVote(ctx, pollID, identity)
	if err != nil {
		e.notify(ctx, voter, "Error recording vote, contact the admin")
		return CastVoteResult{}, e.storeFailure(ctx, "governance_vote_lookup_failed", err,
			"poll_id", pollID,
			"identity", identity,
		)
	}
	if !found {
		err := e.store.InsertVote(ctx, vote)
		if err == nil {
			e.logger.Info("vote recorded", e.attrs(ctx, "governance_vote_recorded",
				"poll_id", pollID,
				"identity", identity,
				"decision", string(decision),
			)...)
			e.broadcast(ctx, "%s voted %s for poll #%d: %s", voter, decision, pollID, displayComment(comment))
			return CastVoteResult{Vote: vote, Outcome: VoteRecorded}, nil
		}
		if !errors.Is(err, domainerrors.ErrVoteExists) {
			e.notify(ctx, voter, "Error recording vote, contact the admin")
			return CastVoteResult{}, e.storeFailure(ctx, "governance_vote_insert_failed", err,
				"poll_id", pollID,
				"identity", identity,
			)
		}
		// A concurrent cast by the same voter won the insert.
		existing, found, err = e.store.GetVote(ctx, pollID, identity)
		if err != nil || !found {
			if err == nil {
				err = domainerrors.ErrVoteNotFound
			}
			e.notify(ctx, voter, "Error recording vote, contact the admin")
			return CastVoteResult{}, e.storeFailure(ctx, "governance_vote_reload_failed", err,
				"poll_id", pollID,
				"identity", identity,
			)
		}
	}
	return e.confirmRevote(ctx, voter, existing, vote)
}

func (e *Engine) confirmRevote(
	ctx context.Context,
	voter string,
	previous entities.Vote,
	vote entities.Vote,
) (CastVoteResult, error) {
	result := CastVoteResult{Vote: previous, Previous: &previous}
	e.notify(ctx, voter, "You already voted for this poll (%s: %s), please confirm with '%syes' or '%sno'",
		previous.Decision, Shorten(previous.Comment, CommentDisplayWidth), e.prefix, e.prefix)

	ticket, replaced := e.confirmations.Register(vote.Voter)
	if replaced {
		e.logger.Info("pending confirmation replaced", e.attrs(ctx, "governance_confirmation_replaced",
			"identity", vote.Voter,
			"poll_id", vote.PollID,
		)...)
	}

	outcome := e.confirmations.Await(ctx, ticket)
	e.logger.Info("confirmation finished", e.attrs(ctx, "governance_confirmation_finished",
		"identity", vote.Voter,
		"poll_id", vote.PollID,
		"outcome", outcome.String(),
	)...)

	switch outcome {
	case confirmations.OutcomeConfirmed:
	case confirmations.OutcomeDeclined:
		result.Outcome = VoteDeclined
		return result, nil
	case confirmations.OutcomeSuperseded:
		result.Outcome = VoteSuperseded
		return result, nil
	case confirmations.OutcomeTimedOut:
		e.notify(ctx, voter, "Confirmation timed out")
		return result, domainerrors.ErrConfirmationTimeout
	default:
		return result, ctx.Err()
	}

	if err := e.requireRunning(ctx, voter, vote.PollID); err != nil {
		return result, err
	}
	if err := e.store.UpdateVote(ctx, vote); err != nil {
		e.notify(ctx, voter, "Error recording vote, contact the admin")
		return result, e.storeFailure(ctx, "governance_vote_update_failed", err,
			"poll_id", vote.PollID,
			"identity", vote.Voter,
		)
	}
	e.logger.Info("vote changed", e.attrs(ctx, "governance_vote_changed",
		"poll_id", vote.PollID,
		"identity", vote.Voter,
		"previous_decision", string(previous.Decision),
		"decision", string(vote.Decision),
	)...)
	e.broadcast(ctx, "%s changed vote from %s to %s for poll #%d: %s",
		voter, previous.Decision, vote.Decision, vote.PollID, displayComment(vote.Comment))
	return CastVoteResult{Vote: vote, Previous: &previous, Outcome: VoteChanged}, nil
}

// Confirm answers the pending re-vote confirmation of nick.
func (e *Engine) Confirm(ctx context.Context, nick string, confirmed bool) error {
	identity, ok, err := e.transport.ResolveIdentity(ctx, nick)
	if err != nil || !ok || !e.confirmations.Resolve(identity, confirmed) {
		e.notify(ctx, nick, "Nothing to confirm")
		return domainerrors.ErrNothingToConfirm
	}
	e.logger.Info("confirmation answered", e.attrs(ctx, "governance_confirmation_answered",
		"identity", identity,
		"confirmed", confirmed,
	)...)
	return nil
}

func (e *Engine) requireRunning(ctx context.Context, voter string, pollID int64) error {
	poll, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrPollNotFound) {
			e.notify(ctx, voter, "Poll #%d doesn't exist", pollID)
			return err
		}
		e.notify(ctx, voter, "Error recording vote, contact the admin")
		return e.storeFailure(ctx, "governance_vote_poll_lookup_failed", err, "poll_id", pollID)
	}
	if !poll.IsRunning() {
		e.notify(ctx, voter, "Poll #%d is not running (%s)", pollID, poll.Status)
		return domainerrors.ErrPollNotRunning
	}
	return nil
}
