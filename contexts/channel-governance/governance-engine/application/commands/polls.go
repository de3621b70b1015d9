package commands

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/cases"

	"votebot/contexts/channel-governance/governance-engine/domain/entities"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
)

// CallVote creates a RUNNING poll on behalf of issuer and announces it.
func (e *Engine) CallVote(ctx context.Context, issuer string, description string) (entities.Poll, error) {
	e.logger.Info("poll creation started", e.attrs(ctx, "governance_poll_create_started",
		"issuer", issuer,
	)...)
	description = strings.TrimSpace(description)
	if description == "" {
		e.notify(ctx, issuer, "Please add a description")
		return entities.Poll{}, domainerrors.ErrInvalidArgument
	}
	identity, privilege, err := e.privilegeOf(ctx, issuer)
	if err != nil {
		e.notify(ctx, issuer, "Error checking permissions, contact the admin")
		return entities.Poll{}, err
	}
	if !privilege.IsActive() {
		e.logger.Info("poll creation denied", e.attrs(ctx, "governance_poll_create_denied",
			"issuer", issuer,
			"privilege", string(privilege),
		)...)
		e.notify(ctx, issuer, "You are not allowed to create votes")
		return entities.Poll{}, domainerrors.ErrUnauthorized
	}

	poll, err := e.insertPollLocked(ctx, entities.Poll{
		Description: description,
		Creator:     identity,
		Status:      entities.PollStatusRunning,
		CreatedAt:   e.now(),
		Duration:    entities.DefaultPollDuration,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return entities.Poll{}, ctxErr
		}
		e.broadcast(ctx, "Could not create new poll")
		return entities.Poll{}, e.storeFailure(ctx, "governance_poll_insert_failed", err, "identity", identity)
	}

	e.logger.Info("poll created", e.attrs(ctx, "governance_poll_created",
		"poll_id", poll.ID,
		"creator", poll.Creator,
	)...)
	e.transport.Broadcast(ctx, e.channel, e.pollAnnouncement(poll.ID, issuer, poll.Description))
	return poll, nil
}

func (e *Engine) insertPollLocked(ctx context.Context, poll entities.Poll) (entities.Poll, error) {
	if err := e.acquire(ctx); err != nil {
		return entities.Poll{}, err
	}
	defer e.release()
	return e.store.InsertPoll(ctx, poll)
}

// VetoPoll moves a RUNNING poll to VETOED. Only stored ADMIN privilege
// qualifies; transport admins get no bypass here.
func (e *Engine) VetoPoll(ctx context.Context, issuer string, pollID int64, reason string) error {
	e.logger.Info("poll veto started", e.attrs(ctx, "governance_poll_veto_started",
		"issuer", issuer,
		"poll_id", pollID,
	)...)
	identity, privilege, err := e.privilegeOf(ctx, issuer)
	if err != nil {
		e.notify(ctx, issuer, "Error checking permissions, contact the admin")
		return err
	}
	if privilege != entities.PrivilegeAdmin {
		e.logger.Info("poll veto denied", e.attrs(ctx, "governance_poll_veto_denied",
			"issuer", issuer,
			"poll_id", pollID,
			"privilege", string(privilege),
		)...)
		e.notify(ctx, issuer, "Only admins can VETO polls")
		return domainerrors.ErrUnauthorized
	}

	poll, err := e.transitionLocked(ctx, pollID, nil, func(poll entities.Poll) error {
		return e.store.VetoPoll(ctx, poll.ID, identity, strings.TrimSpace(reason))
	})
	if err != nil {
		return e.reportTransitionFailure(ctx, issuer, pollID, poll, err, "Error vetoing poll, contact the admin")
	}

	e.logger.Info("poll vetoed", e.attrs(ctx, "governance_poll_vetoed",
		"poll_id", pollID,
		"vetoed_by", identity,
	)...)
	e.broadcast(ctx, "Poll #%d vetoed", pollID)
	return nil
}

// CancelPoll moves a RUNNING poll to CANCELED. Only the poll's creator may
// cancel; identities are compared case-insensitively.
func (e *Engine) CancelPoll(ctx context.Context, issuer string, pollID int64) error {
	e.logger.Info("poll cancel started", e.attrs(ctx, "governance_poll_cancel_started",
		"issuer", issuer,
		"poll_id", pollID,
	)...)
	identity, ok, err := e.transport.ResolveIdentity(ctx, issuer)
	if err != nil || !ok {
		identity = ""
	}

	ownedByIssuer := func(poll entities.Poll) error {
		if identity == "" || !sameIdentity(poll.Creator, identity) {
			return domainerrors.ErrNotPollCreator
		}
		return nil
	}
	poll, err := e.transitionLocked(ctx, pollID, ownedByIssuer, func(poll entities.Poll) error {
		return e.store.UpdatePollStatus(ctx, poll.ID, entities.PollStatusCanceled)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotPollCreator) {
			e.logger.Info("poll cancel denied", e.attrs(ctx, "governance_poll_cancel_denied",
				"issuer", issuer,
				"poll_id", pollID,
			)...)
			e.notify(ctx, issuer, "Only the creator of a poll can cancel it")
			return err
		}
		return e.reportTransitionFailure(ctx, issuer, pollID, poll, err, "Error cancelling poll, contact the admin")
	}

	e.logger.Info("poll canceled", e.attrs(ctx, "governance_poll_canceled",
		"poll_id", pollID,
		"identity", identity,
	)...)
	e.broadcast(ctx, "Poll #%d cancelled", pollID)
	return nil
}

// transitionLocked loads the poll under the channel lock, applies the
// optional authorization check, requires the poll to be RUNNING and applies
// the mutation before the lock is released. The poll is returned on every
// path where it was loaded.
func (e *Engine) transitionLocked(
	ctx context.Context,
	pollID int64,
	authorize func(entities.Poll) error,
	mutate func(entities.Poll) error,
) (entities.Poll, error) {
	if err := e.acquire(ctx); err != nil {
		return entities.Poll{}, err
	}
	defer e.release()

	poll, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		return entities.Poll{}, err
	}
	if authorize != nil {
		if err := authorize(poll); err != nil {
			return poll, err
		}
	}
	if !poll.IsRunning() {
		return poll, domainerrors.ErrPollNotRunning
	}
	return poll, mutate(poll)
}

func (e *Engine) reportTransitionFailure(
	ctx context.Context,
	issuer string,
	pollID int64,
	poll entities.Poll,
	err error,
	apology string,
) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, domainerrors.ErrPollNotFound):
		e.notify(ctx, issuer, "No Poll with given ID found, aborting...")
		return err
	case errors.Is(err, domainerrors.ErrPollNotRunning):
		e.notify(ctx, issuer, "Poll #%d isn't running (%s)", pollID, poll.Status)
		return err
	default:
		e.notify(ctx, issuer, apology)
		return e.storeFailure(ctx, "governance_poll_transition_failed", err, "poll_id", pollID)
	}
}

func sameIdentity(a string, b string) bool {
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}
