package postgresadapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"votebot/contexts/channel-governance/governance-engine/domain/entities"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
	"votebot/contexts/channel-governance/governance-engine/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	maxSchemaLength   = 63
	schemaDigestBytes = 8
)

// Repository keeps one channel's users, polls and votes in its own schema.
type Repository struct {
	db     *gorm.DB
	schema string
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, schema string, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		schema: schema,
		logger: logger,
	}
}

func (r *Repository) Schema() string {
	return r.schema
}

// Migrate creates the channel schema and its tables when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range schemaStatements(r.schema) {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return r.logError("governance_repo_migrate_failed", err)
	}
	return nil
}

// Close is a no-op; the connection pool is shared across channels and owned
// by the caller that opened it.
func (r *Repository) Close() error {
	return nil
}

func (r *Repository) GetPrivilege(ctx context.Context, identity string) (entities.Privilege, error) {
	var row userModel
	err := r.db.WithContext(ctx).
		Table(r.table("users")).
		Where("id = ?", identity).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.PrivilegeInvalid, nil
		}
		return entities.PrivilegeInvalid, r.logError("governance_repo_get_privilege_failed", err, "identity", identity)
	}
	privilege, ok := entities.ParsePrivilege(row.Privilege)
	if !ok {
		return entities.PrivilegeInvalid, nil
	}
	return privilege, nil
}

func (r *Repository) InsertUser(ctx context.Context, user entities.User) error {
	row := userModel{
		ID:        user.Identity,
		Name:      user.DisplayName,
		Privilege: string(user.Privilege),
	}
	if err := r.db.WithContext(ctx).Table(r.table("users")).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrUserExists
		}
		return r.logError("governance_repo_insert_user_failed", err, "identity", user.Identity)
	}
	return nil
}

func (r *Repository) UpdatePrivilege(ctx context.Context, identity string, privilege entities.Privilege) error {
	result := r.db.WithContext(ctx).
		Table(r.table("users")).
		Where("id = ?", identity).
		Update("privilege", string(privilege))
	if result.Error != nil {
		return r.logError("governance_repo_update_privilege_failed", result.Error, "identity", identity)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrUserNotFound
	}
	return nil
}

func (r *Repository) CountActive(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table(r.table("users")).
		Where("privilege IN ?", []string{string(entities.PrivilegeUser), string(entities.PrivilegeAdmin)}).
		Count(&count).
		Error
	if err != nil {
		return 0, r.logError("governance_repo_count_active_failed", err)
	}
	return int(count), nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]entities.User, error) {
	var rows []userModel
	if err := r.db.WithContext(ctx).
		Table(r.table("users")).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_users_failed", err)
	}
	items := make([]entities.User, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) InsertPoll(ctx context.Context, poll entities.Poll) (entities.Poll, error) {
	if poll.Status == "" {
		poll.Status = entities.PollStatusRunning
	}
	if poll.Duration <= 0 {
		poll.Duration = entities.DefaultPollDuration
	}
	if poll.CreatedAt.IsZero() {
		poll.CreatedAt = time.Now().UTC()
	}
	row := pollModelFromEntity(poll)
	row.ID = 0
	if err := r.db.WithContext(ctx).Table(r.table("polls")).Create(&row).Error; err != nil {
		if isForeignKeyViolation(err) {
			return entities.Poll{}, domainerrors.ErrReferenceMissing
		}
		return entities.Poll{}, r.logError("governance_repo_insert_poll_failed", err, "creator", poll.Creator)
	}
	return row.toEntity(), nil
}

func (r *Repository) GetPoll(ctx context.Context, pollID int64) (entities.Poll, error) {
	var row pollModel
	err := r.db.WithContext(ctx).
		Table(r.table("polls")).
		Where("id = ?", pollID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Poll{}, domainerrors.ErrPollNotFound
		}
		return entities.Poll{}, r.logError("governance_repo_get_poll_failed", err, "poll_id", pollID)
	}
	return row.toEntity(), nil
}

func (r *Repository) UpdatePollStatus(ctx context.Context, pollID int64, status entities.PollStatus) error {
	return r.updatePoll(ctx, "governance_repo_update_poll_status_failed", pollID, map[string]any{
		"status": string(status),
	})
}

func (r *Repository) VetoPoll(ctx context.Context, pollID int64, vetoedBy string, reason string) error {
	return r.updatePoll(ctx, "governance_repo_veto_poll_failed", pollID, map[string]any{
		"status":      string(entities.PollStatusVetoed),
		"vetoed_by":   vetoedBy,
		"veto_reason": reason,
	})
}

func (r *Repository) updatePoll(ctx context.Context, event string, pollID int64, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Table(r.table("polls")).
		Where("id = ?", pollID).
		Updates(updates)
	if result.Error != nil {
		if isForeignKeyViolation(result.Error) {
			return domainerrors.ErrReferenceMissing
		}
		return r.logError(event, result.Error, "poll_id", pollID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrPollNotFound
	}
	return nil
}

func (r *Repository) ListPolls(ctx context.Context, filter ports.PollFilter) ([]entities.Poll, error) {
	tx := r.db.WithContext(ctx).Table(r.table("polls"))
	if filter.Status != "" {
		tx = tx.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	var rows []pollModel
	if err := tx.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_polls_failed", err, "status", string(filter.Status))
	}
	items := make([]entities.Poll, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetVote(ctx context.Context, pollID int64, voter string) (entities.Vote, bool, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Table(r.table("votes")).
		Where(`poll_id = ? AND "user" = ?`, pollID, voter).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, false, nil
		}
		return entities.Vote{}, false, r.logError("governance_repo_get_vote_failed", err,
			"poll_id", pollID,
			"identity", voter,
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) InsertVote(ctx context.Context, vote entities.Vote) error {
	row := voteModelFromEntity(vote)
	if err := r.db.WithContext(ctx).Table(r.table("votes")).Create(&row).Error; err != nil {
		switch {
		case isUniqueViolation(err):
			return domainerrors.ErrVoteExists
		case isForeignKeyViolation(err):
			return domainerrors.ErrReferenceMissing
		}
		return r.logError("governance_repo_insert_vote_failed", err,
			"poll_id", vote.PollID,
			"identity", vote.Voter,
		)
	}
	return nil
}

func (r *Repository) UpdateVote(ctx context.Context, vote entities.Vote) error {
	result := r.db.WithContext(ctx).
		Table(r.table("votes")).
		Where(`poll_id = ? AND "user" = ?`, vote.PollID, vote.Voter).
		Updates(map[string]any{
			"decision": string(vote.Decision),
			"comment":  vote.Comment,
		})
	if result.Error != nil {
		return r.logError("governance_repo_update_vote_failed", result.Error,
			"poll_id", vote.PollID,
			"identity", vote.Voter,
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrVoteNotFound
	}
	return nil
}

func (r *Repository) ListVotes(ctx context.Context, pollID int64) ([]entities.Vote, error) {
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Table(r.table("votes")).
		Where("poll_id = ?", pollID).
		Order(`"user" ASC`).
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_votes_failed", err, "poll_id", pollID)
	}
	items := make([]entities.Vote, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) table(name string) string {
	return r.schema + "." + name
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+10)
	fields = append(fields,
		"event", event,
		"module", "channel-governance/governance-engine",
		"layer", "adapter",
		"schema", r.schema,
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("governance repository operation failed", fields...)
	return err
}

func schemaStatements(schema string) []string {
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			privilege TEXT NOT NULL CHECK (privilege IN ('REVOKED', 'USER', 'ADMIN'))
		)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s.polls (
			id BIGSERIAL PRIMARY KEY,
			description TEXT NOT NULL,
			creator TEXT NOT NULL REFERENCES %[1]s.users(id),
			vetoed_by TEXT REFERENCES %[1]s.users(id),
			veto_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			duration BIGINT NOT NULL DEFAULT 604800,
			status TEXT NOT NULL DEFAULT 'RUNNING'
				CHECK (status IN ('RUNNING', 'CANCELED', 'PASSED', 'TIED', 'FAILED', 'VETOED'))
		)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s.votes (
			poll_id BIGINT NOT NULL REFERENCES %[1]s.polls(id),
			"user" TEXT NOT NULL REFERENCES %[1]s.users(id),
			decision TEXT NOT NULL CHECK (decision IN ('NONE', 'ABSTAIN', 'YES', 'NO')),
			comment TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (poll_id, "user")
		)`, schema),
	}
}

// SchemaName maps a channel to its Postgres schema: lower-cased, leading
// '#' removed, '_' doubled and every other byte outside [a-z0-9] written as
// _xx hex, so distinct channels get distinct schemas. Names longer than a
// Postgres identifier keep a prefix and end in a digest of the full name.
func SchemaName(channel string) (string, error) {
	name := strings.ToLower(strings.TrimLeft(strings.TrimSpace(channel), "#"))
	if name == "" {
		return "", fmt.Errorf("%w: channel name %q", domainerrors.ErrInvalidArgument, channel)
	}
	var b strings.Builder
	b.WriteString("vote_")
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '_':
			b.WriteString("__")
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	schema := b.String()
	if len(schema) > maxSchemaLength {
		sum := sha256.Sum256([]byte(name))
		digest := hex.EncodeToString(sum[:schemaDigestBytes])
		schema = schema[:maxSchemaLength-len(digest)-1] + "_" + digest
	}
	return schema, nil
}

// Factory opens one schema per channel on a shared connection pool.
type Factory struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

func (f Factory) OpenChannel(ctx context.Context, channel string) (ports.ChannelStore, error) {
	schema, err := SchemaName(channel)
	if err != nil {
		return nil, err
	}
	repo := NewRepository(f.DB, schema, f.Logger)
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

type userModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	Name      string `gorm:"column:name"`
	Privilege string `gorm:"column:privilege"`
}

func (m userModel) toEntity() entities.User {
	return entities.User{
		Identity:    m.ID,
		DisplayName: m.Name,
		Privilege:   entities.Privilege(m.Privilege),
	}
}

type pollModel struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Description string    `gorm:"column:description"`
	Creator     string    `gorm:"column:creator"`
	VetoedBy    *string   `gorm:"column:vetoed_by"`
	VetoReason  *string   `gorm:"column:veto_reason"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	Duration    int64     `gorm:"column:duration"`
	Status      string    `gorm:"column:status"`
}

func pollModelFromEntity(poll entities.Poll) pollModel {
	return pollModel{
		ID:          poll.ID,
		Description: poll.Description,
		Creator:     poll.Creator,
		VetoedBy:    optionalString(poll.VetoedBy),
		VetoReason:  optionalString(poll.VetoReason),
		CreatedAt:   poll.CreatedAt.UTC(),
		Duration:    int64(poll.Duration / time.Second),
		Status:      string(poll.Status),
	}
}

func (m pollModel) toEntity() entities.Poll {
	poll := entities.Poll{
		ID:          m.ID,
		Description: m.Description,
		Creator:     m.Creator,
		CreatedAt:   m.CreatedAt.UTC(),
		Duration:    time.Duration(m.Duration) * time.Second,
		Status:      entities.PollStatus(m.Status),
	}
	if m.VetoedBy != nil {
		poll.VetoedBy = *m.VetoedBy
	}
	if m.VetoReason != nil {
		poll.VetoReason = *m.VetoReason
	}
	return poll
}

type voteModel struct {
	PollID   int64  `gorm:"column:poll_id;primaryKey"`
	User     string `gorm:"column:user;primaryKey"`
	Decision string `gorm:"column:decision"`
	Comment  string `gorm:"column:comment"`
}

func voteModelFromEntity(vote entities.Vote) voteModel {
	return voteModel{
		PollID:   vote.PollID,
		User:     vote.Voter,
		Decision: string(vote.Decision),
		Comment:  vote.Comment,
	}
}

func (m voteModel) toEntity() entities.Vote {
	return entities.Vote{
		PollID:   m.PollID,
		Voter:    m.User,
		Decision: entities.Decision(m.Decision),
		Comment:  m.Comment,
	}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ ports.ChannelStore = (*Repository)(nil)
var _ ports.StoreFactory = Factory{}
