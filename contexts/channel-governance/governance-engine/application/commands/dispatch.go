package commands

import (
	"context"
	"strconv"
	"strings"

	"votebot/contexts/channel-governance/governance-engine/domain/entities"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
)

// Message is one inbound channel line and the nick that sent it.
type Message struct {
	Nick string
	Text string
}

// Dispatch validates a command line and starts the matching operation as an
// asynchronous task. Malformed invocations are answered with a notice and
// return ErrInvalidArgument before any store access. Lines without the
// command prefix and unknown verbs are ignored.
func (e *Engine) Dispatch(ctx context.Context, msg Message) error {
	if !strings.HasPrefix(msg.Text, e.prefix) {
		return nil
	}
	tokens := strings.Fields(strings.TrimPrefix(msg.Text, e.prefix))
	if len(tokens) == 0 {
		return nil
	}
	if e.ids != nil {
		if id, err := e.ids.NewID(ctx); err == nil {
			ctx = withCommandID(ctx, id)
		}
	}
	verb, args := strings.ToLower(tokens[0]), tokens[1:]
	nick := msg.Nick

	switch verb {
	case "useradd":
		if len(args) == 0 {
			return e.reject(ctx, nick, verb, "No user given, usage: useradd <user> [privilege]")
		}
		if len(args) > 2 {
			return e.reject(ctx, nick, verb, "Incorrect call for useradd, usage: useradd <user> [privilege]")
		}
		privilege := entities.PrivilegeUser
		if len(args) == 2 {
			parsed, ok := entities.ParsePrivilege(args[1])
			if !ok {
				return e.reject(ctx, nick, verb, "Unknown privilege, aborting...")
			}
			privilege = parsed
		}
		target := args[0]
		return e.launch(ctx, verb, func(ctx context.Context) error {
			return e.AddUser(ctx, nick, target, privilege)
		})

	case "usermod":
		switch {
		case len(args) == 0:
			return e.reject(ctx, nick, verb, "No user given, usage: usermod <user> <privilege>")
		case len(args) == 1:
			return e.reject(ctx, nick, verb, "No privilege given, usage: usermod <user> <privilege>")
		case len(args) > 2:
			return e.reject(ctx, nick, verb, "Incorrect call for usermod, usage: usermod <user> <privilege>")
		}
		privilege, ok := entities.ParsePrivilege(args[1])
		if !ok {
			return e.reject(ctx, nick, verb, "Unknown privilege, aborting...")
		}
		target := args[0]
		return e.launch(ctx, verb, func(ctx context.Context) error {
			return e.ModUser(ctx, nick, target, privilege)
		})

	case "vcall":
		if len(args) == 0 {
			return e.reject(ctx, nick, verb, "Please add a description")
		}
		description := strings.Join(args, " ")
		return e.launch(ctx, verb, func(ctx context.Context) error {
			_, err := e.CallVote(ctx, nick, description)
			return err
		})

	case "vyes", "vno", "vabstain":
		pollID, err := e.pollIDArg(ctx, nick, verb, args)
		if err != nil {
			return err
		}
		decision, _ := entities.ParseDecision(strings.TrimPrefix(verb, "v"))
		comment := strings.Join(args[1:], " ")
		return e.launch(ctx, verb, func(ctx context.Context) error {
			_, err := e.CastVote(ctx, nick, pollID, decision, comment)
			return err
		})

	case "vveto":
		pollID, err := e.pollIDArg(ctx, nick, verb, args)
		if err != nil {
			return err
		}
		reason := strings.Join(args[1:], " ")
		return e.launch(ctx, verb, func(ctx context.Context) error {
			return e.VetoPoll(ctx, nick, pollID, reason)
		})

	case "vcancel":
		pollID, err := e.pollIDArg(ctx, nick, verb, args)
		if err != nil {
			return err
		}
		return e.launch(ctx, verb, func(ctx context.Context) error {
			return e.CancelPoll(ctx, nick, pollID)
		})

	case "yes", "no":
		return e.Confirm(ctx, nick, verb == "yes")
	}
	return nil
}

func (e *Engine) pollIDArg(ctx context.Context, nick string, verb string, args []string) (int64, error) {
	if len(args) == 0 {
		return 0, e.reject(ctx, nick, verb, "No poll ID given")
	}
	pollID, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || pollID <= 0 {
		return 0, e.reject(ctx, nick, verb, "Invalid poll ID: "+args[0])
	}
	return pollID, nil
}

func (e *Engine) reject(ctx context.Context, nick string, verb string, notice string) error {
	e.logger.Info("governance command rejected", e.attrs(ctx, "governance_command_rejected",
		"nick", nick,
		"verb", verb,
		"reason", notice,
	)...)
	e.transport.NotifyUser(ctx, nick, notice)
	return domainerrors.ErrInvalidArgument
}
