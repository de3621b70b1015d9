package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	application "votebot/contexts/channel-governance/governance-engine/application"
	"votebot/contexts/channel-governance/governance-engine/application/confirmations"
	"votebot/contexts/channel-governance/governance-engine/domain/entities"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
	"votebot/contexts/channel-governance/governance-engine/ports"
)

const DefaultPrefix = "!"

// Config holds the per-channel settings of an Engine.
type Config struct {
	Channel             string
	Prefix              string
	ConfirmationTimeout time.Duration
	// PollURLBase, when set, is used to link new polls in announcements.
	PollURLBase string
}

type Dependencies struct {
	Store     ports.ChannelStore
	Transport ports.Transport
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

// Engine is the governance core of one channel. It owns the channel's store,
// its mutation lock, its pending confirmations and the active-user gauge.
// Poll creation, veto and cancel hold the mutation lock across their storage
// sequence; voting relies on the (poll, voter) key of the ledger instead.
type Engine struct {
	channel     string
	prefix      string
	pollURLBase string

	store     ports.ChannelStore
	transport ports.Transport
	clock     ports.Clock
	ids       ports.IDGenerator
	logger    *slog.Logger

	lock          *semaphore.Weighted
	confirmations *confirmations.Coordinator
	activeUsers   atomic.Int64

	mu          sync.Mutex
	closed      bool
	tasks       sync.WaitGroup
	taskCtx     context.Context
	cancelTasks context.CancelFunc
}

func NewEngine(cfg Config, deps Dependencies) *Engine {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	taskCtx, cancel := context.WithCancel(context.Background())
	return &Engine{
		channel:       strings.TrimSpace(cfg.Channel),
		prefix:        prefix,
		pollURLBase:   strings.TrimRight(strings.TrimSpace(cfg.PollURLBase), "/"),
		store:         deps.Store,
		transport:     deps.Transport,
		clock:         deps.Clock,
		ids:           deps.IDGen,
		logger:        application.ResolveLogger(deps.Logger),
		lock:          semaphore.NewWeighted(1),
		confirmations: confirmations.NewCoordinator(cfg.ConfirmationTimeout),
		taskCtx:       taskCtx,
		cancelTasks:   cancel,
	}
}

// Start primes the active-user gauge from the store.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.refreshActiveUsers(ctx); err != nil {
		return err
	}
	e.logger.Info("channel governance started", e.attrs(ctx, "governance_engine_started",
		"active_users", e.ActiveUsers(),
		"prefix", e.prefix,
		"confirmation_timeout", e.confirmations.Timeout().String(),
	)...)
	return nil
}

func (e *Engine) Channel() string {
	return e.channel
}

func (e *Engine) Prefix() string {
	return e.prefix
}

// Store exposes the channel's storage namespace to read-side queries.
func (e *Engine) Store() ports.ChannelStore {
	return e.store
}

// ActiveUsers is the cached count of USER and ADMIN rows. It may lag the
// store until the next full requery.
func (e *Engine) ActiveUsers() int {
	return int(e.activeUsers.Load())
}

func (e *Engine) PendingConfirmations() int {
	return e.confirmations.Len()
}

// Close stops accepting commands, cancels waiting confirmations, waits for
// in-flight tasks and closes the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancelTasks()
	e.tasks.Wait()
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Wait blocks until every launched command task has finished.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

func (e *Engine) launch(ctx context.Context, verb string, task func(context.Context) error) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domainerrors.ErrChannelClosed
	}
	e.tasks.Add(1)
	e.mu.Unlock()

	taskCtx := withCommandID(e.taskCtx, commandIDFrom(ctx))
	go func() {
		defer e.tasks.Done()
		if err := task(taskCtx); err != nil {
			e.logger.Debug("governance command finished with error", e.attrs(taskCtx, "governance_command_failed",
				"verb", verb,
				"error", err.Error(),
			)...)
		}
	}()
	return nil
}

func (e *Engine) refreshActiveUsers(ctx context.Context) error {
	count, err := e.store.CountActive(ctx)
	if err != nil {
		e.logger.Warn("active user count refresh failed", e.attrs(ctx, "governance_active_users_refresh_failed",
			"error", err.Error(),
		)...)
		return fmt.Errorf("%w: %v", domainerrors.ErrStoreFailure, err)
	}
	e.activeUsers.Store(int64(count))
	return nil
}

// privilegeOf resolves nick to its identity and stored privilege. An
// unresolvable nick has PrivilegeInvalid.
func (e *Engine) privilegeOf(ctx context.Context, nick string) (string, entities.Privilege, error) {
	identity, ok, err := e.transport.ResolveIdentity(ctx, nick)
	if err != nil {
		e.logger.Warn("identity lookup failed", e.attrs(ctx, "governance_identity_lookup_failed",
			"nick", nick,
			"error", err.Error(),
		)...)
		return "", entities.PrivilegeInvalid, nil
	}
	if !ok || strings.TrimSpace(identity) == "" {
		e.logger.Info("user is not authenticated", e.attrs(ctx, "governance_user_not_authenticated",
			"nick", nick,
		)...)
		return "", entities.PrivilegeInvalid, nil
	}
	privilege, err := e.store.GetPrivilege(ctx, identity)
	if err != nil {
		return identity, entities.PrivilegeInvalid, e.storeFailure(ctx, "governance_privilege_lookup_failed", err,
			"identity", identity,
		)
	}
	return identity, privilege, nil
}

func (e *Engine) acquire(ctx context.Context) error {
	return e.lock.Acquire(ctx, 1)
}

func (e *Engine) release() {
	e.lock.Release(1)
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) notify(ctx context.Context, target string, format string, args ...any) {
	e.transport.NotifyUser(ctx, target, fmt.Sprintf(format, args...))
}

func (e *Engine) broadcast(ctx context.Context, format string, args ...any) {
	e.transport.Broadcast(ctx, e.channel, fmt.Sprintf(format, args...))
}

// storeFailure logs a persistence error and classifies it. Domain errors
// surfaced by adapters pass through unchanged.
func (e *Engine) storeFailure(ctx context.Context, event string, err error, attrs ...any) error {
	if isDomainError(err) {
		return err
	}
	e.logger.Warn("governance store operation failed", e.attrs(ctx, event,
		append([]any{"error", err.Error()}, attrs...)...,
	)...)
	return fmt.Errorf("%w: %v", domainerrors.ErrStoreFailure, err)
}

func (e *Engine) attrs(ctx context.Context, event string, attrs ...any) []any {
	fields := make([]any, 0, len(attrs)+10)
	fields = append(fields,
		"event", event,
		"module", application.Module,
		"layer", "application",
		"channel", e.channel,
	)
	if id := commandIDFrom(ctx); id != "" {
		fields = append(fields, "command_id", id)
	}
	return append(fields, attrs...)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domainerrors.ErrUserExists,
		domainerrors.ErrUserNotFound,
		domainerrors.ErrPollNotFound,
		domainerrors.ErrVoteExists,
		domainerrors.ErrVoteNotFound,
		domainerrors.ErrReferenceMissing,
		domainerrors.ErrStoreFailure,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type commandIDKey struct{}

func withCommandID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, commandIDKey{}, id)
}

func commandIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(commandIDKey{}).(string)
	return id
}
