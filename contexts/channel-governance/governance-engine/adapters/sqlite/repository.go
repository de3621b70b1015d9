// Package sqliteadapter stores each channel in its own SQLite database file.
package sqliteadapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"votebot/contexts/channel-governance/governance-engine/domain/entities"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
	"votebot/contexts/channel-governance/governance-engine/ports"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY NOT NULL,
		name TEXT NOT NULL,
		privilege TEXT NOT NULL CHECK (privilege IN ('REVOKED', 'USER', 'ADMIN'))
	);`,
	`CREATE TABLE IF NOT EXISTS polls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		description TEXT NOT NULL,
		creator TEXT NOT NULL REFERENCES users(id),
		vetoed_by TEXT REFERENCES users(id),
		veto_reason TEXT,
		created_at INTEGER NOT NULL DEFAULT (CAST(strftime('%s', 'now') AS INTEGER)),
		duration INTEGER NOT NULL DEFAULT 604800,
		status TEXT NOT NULL DEFAULT 'RUNNING'
			CHECK (status IN ('RUNNING', 'CANCELED', 'PASSED', 'TIED', 'FAILED', 'VETOED'))
	);`,
	`CREATE TABLE IF NOT EXISTS votes (
		poll_id INTEGER NOT NULL REFERENCES polls(id),
		"user" TEXT NOT NULL REFERENCES users(id),
		decision TEXT NOT NULL CHECK (decision IN ('NONE', 'ABSTAIN', 'YES', 'NO')),
		comment TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (poll_id, "user")
	);`,
}

var errDuplicateKey = errors.New("duplicate key")

type Repository struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and initialises the
// schema. The handle is limited to one connection so every write goes
// through a single writer.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	if strings.ContainsAny(path, "?#") {
		return nil, fmt.Errorf("%w: sqlite path %q must not contain '?' or '#'", domainerrors.ErrInvalidArgument, path)
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db, path: path, logger: logger}
	if err := repo.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return r.logError("governance_sqlite_schema_init_failed", err)
		}
	}
	return nil
}

func (r *Repository) Path() string {
	return r.path
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) GetPrivilege(ctx context.Context, identity string) (entities.Privilege, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT privilege FROM users WHERE id = ?`, identity).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.PrivilegeInvalid, nil
		}
		return entities.PrivilegeInvalid, r.logError("governance_sqlite_get_privilege_failed", err, "identity", identity)
	}
	privilege, ok := entities.ParsePrivilege(raw)
	if !ok {
		return entities.PrivilegeInvalid, nil
	}
	return privilege, nil
}

func (r *Repository) InsertUser(ctx context.Context, user entities.User) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, name, privilege) VALUES (?, ?, ?)`,
			user.Identity, user.DisplayName, string(user.Privilege),
		)
		return err
	})
	if err != nil {
		if errors.Is(classify(err), errDuplicateKey) {
			return domainerrors.ErrUserExists
		}
		return r.logError("governance_sqlite_insert_user_failed", err, "identity", user.Identity)
	}
	return nil
}

func (r *Repository) UpdatePrivilege(ctx context.Context, identity string, privilege entities.Privilege) error {
	var affected int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE users SET privilege = ? WHERE id = ?`, string(privilege), identity)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return r.logError("governance_sqlite_update_privilege_failed", err, "identity", identity)
	}
	if affected == 0 {
		return domainerrors.ErrUserNotFound
	}
	return nil
}

func (r *Repository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE privilege IN ('USER', 'ADMIN')`,
	).Scan(&count)
	if err != nil {
		return 0, r.logError("governance_sqlite_count_active_failed", err)
	}
	return count, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]entities.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, privilege FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, r.logError("governance_sqlite_list_users_failed", err)
	}
	defer rows.Close()

	var items []entities.User
	for rows.Next() {
		var (
			user      entities.User
			privilege string
		)
		if err := rows.Scan(&user.Identity, &user.DisplayName, &privilege); err != nil {
			return nil, r.logError("governance_sqlite_list_users_scan_failed", err)
		}
		user.Privilege = entities.Privilege(privilege)
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.logError("governance_sqlite_list_users_failed", err)
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
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO polls (description, creator, created_at, duration, status) VALUES (?, ?, ?, ?, ?)`,
			poll.Description,
			poll.Creator,
			poll.CreatedAt.Unix(),
			int64(poll.Duration/time.Second),
			string(poll.Status),
		)
		if err != nil {
			return err
		}
		poll.ID, err = result.LastInsertId()
		return err
	})
	if err != nil {
		if errors.Is(classify(err), domainerrors.ErrReferenceMissing) {
			return entities.Poll{}, domainerrors.ErrReferenceMissing
		}
		return entities.Poll{}, r.logError("governance_sqlite_insert_poll_failed", err, "creator", poll.Creator)
	}
	poll.CreatedAt = time.Unix(poll.CreatedAt.Unix(), 0).UTC()
	return poll, nil
}

const pollColumns = `id, description, creator, vetoed_by, veto_reason, created_at, duration, status`

func (r *Repository) GetPoll(ctx context.Context, pollID int64) (entities.Poll, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = ?`, pollID)
	poll, err := scanPoll(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Poll{}, domainerrors.ErrPollNotFound
		}
		return entities.Poll{}, r.logError("governance_sqlite_get_poll_failed", err, "poll_id", pollID)
	}
	return poll, nil
}

func (r *Repository) UpdatePollStatus(ctx context.Context, pollID int64, status entities.PollStatus) error {
	return r.updatePoll(ctx, "governance_sqlite_update_poll_status_failed", pollID,
		`UPDATE polls SET status = ? WHERE id = ?`, string(status), pollID)
}

func (r *Repository) VetoPoll(ctx context.Context, pollID int64, vetoedBy string, reason string) error {
	return r.updatePoll(ctx, "governance_sqlite_veto_poll_failed", pollID,
		`UPDATE polls SET status = 'VETOED', vetoed_by = ?, veto_reason = ? WHERE id = ?`,
		vetoedBy, reason, pollID)
}

func (r *Repository) updatePoll(ctx context.Context, event string, pollID int64, query string, args ...any) error {
	var affected int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		if errors.Is(classify(err), domainerrors.ErrReferenceMissing) {
			return domainerrors.ErrReferenceMissing
		}
		return r.logError(event, err, "poll_id", pollID)
	}
	if affected == 0 {
		return domainerrors.ErrPollNotFound
	}
	return nil
}

func (r *Repository) ListPolls(ctx context.Context, filter ports.PollFilter) ([]entities.Poll, error) {
	query := `SELECT ` + pollColumns + ` FROM polls`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.logError("governance_sqlite_list_polls_failed", err)
	}
	defer rows.Close()

	var items []entities.Poll
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			return nil, r.logError("governance_sqlite_list_polls_scan_failed", err)
		}
		items = append(items, poll)
	}
	if err := rows.Err(); err != nil {
		return nil, r.logError("governance_sqlite_list_polls_failed", err)
	}
	return items, nil
}

func (r *Repository) GetVote(ctx context.Context, pollID int64, voter string) (entities.Vote, bool, error) {
	vote := entities.Vote{PollID: pollID, Voter: voter}
	var decision string
	err := r.db.QueryRowContext(ctx,
		`SELECT decision, comment FROM votes WHERE poll_id = ? AND "user" = ?`,
		pollID, voter,
	).Scan(&decision, &vote.Comment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Vote{}, false, nil
		}
		return entities.Vote{}, false, r.logError("governance_sqlite_get_vote_failed", err,
			"poll_id", pollID,
			"identity", voter,
		)
	}
	vote.Decision = entities.Decision(decision)
	return vote, true, nil
}

func (r *Repository) InsertVote(ctx context.Context, vote entities.Vote) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO votes (poll_id, "user", decision, comment) VALUES (?, ?, ?, ?)`,
			vote.PollID, vote.Voter, string(vote.Decision), vote.Comment,
		)
		return err
	})
	if err != nil {
		switch classified := classify(err); {
		case errors.Is(classified, errDuplicateKey):
			return domainerrors.ErrVoteExists
		case errors.Is(classified, domainerrors.ErrReferenceMissing):
			return domainerrors.ErrReferenceMissing
		}
		return r.logError("governance_sqlite_insert_vote_failed", err,
			"poll_id", vote.PollID,
			"identity", vote.Voter,
		)
	}
	return nil
}

func (r *Repository) UpdateVote(ctx context.Context, vote entities.Vote) error {
	var affected int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE votes SET decision = ?, comment = ? WHERE poll_id = ? AND "user" = ?`,
			string(vote.Decision), vote.Comment, vote.PollID, vote.Voter,
		)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return r.logError("governance_sqlite_update_vote_failed", err,
			"poll_id", vote.PollID,
			"identity", vote.Voter,
		)
	}
	if affected == 0 {
		return domainerrors.ErrVoteNotFound
	}
	return nil
}

func (r *Repository) ListVotes(ctx context.Context, pollID int64) ([]entities.Vote, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT "user", decision, comment FROM votes WHERE poll_id = ? ORDER BY "user" ASC`,
		pollID,
	)
	if err != nil {
		return nil, r.logError("governance_sqlite_list_votes_failed", err, "poll_id", pollID)
	}
	defer rows.Close()

	var items []entities.Vote
	for rows.Next() {
		vote := entities.Vote{PollID: pollID}
		var decision string
		if err := rows.Scan(&vote.Voter, &decision, &vote.Comment); err != nil {
			return nil, r.logError("governance_sqlite_list_votes_scan_failed", err, "poll_id", pollID)
		}
		vote.Decision = entities.Decision(decision)
		items = append(items, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, r.logError("governance_sqlite_list_votes_failed", err, "poll_id", pollID)
	}
	return items, nil
}

// withTx runs fn in its own transaction; each logical mutation commits
// atomically or not at all.
func (r *Repository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+10)
	fields = append(fields,
		"event", event,
		"module", "channel-governance/governance-engine",
		"layer", "adapter",
		"path", r.path,
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("governance sqlite operation failed", fields...)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPoll(row rowScanner) (entities.Poll, error) {
	var (
		poll       entities.Poll
		vetoedBy   sql.NullString
		vetoReason sql.NullString
		createdAt  int64
		duration   int64
		status     string
	)
	if err := row.Scan(
		&poll.ID,
		&poll.Description,
		&poll.Creator,
		&vetoedBy,
		&vetoReason,
		&createdAt,
		&duration,
		&status,
	); err != nil {
		return entities.Poll{}, err
	}
	poll.VetoedBy = vetoedBy.String
	poll.VetoReason = vetoReason.String
	poll.CreatedAt = time.Unix(createdAt, 0).UTC()
	poll.Duration = time.Duration(duration) * time.Second
	poll.Status = entities.PollStatus(status)
	return poll, nil
}

func classify(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch code := sqliteErr.Code(); {
	case code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, code == sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return errDuplicateKey
	case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return domainerrors.ErrReferenceMissing
	case code&0xff == sqlite3.SQLITE_CONSTRAINT:
		message := sqliteErr.Error()
		if strings.Contains(message, "FOREIGN KEY") {
			return domainerrors.ErrReferenceMissing
		}
		if strings.Contains(message, "UNIQUE") || strings.Contains(message, "PRIMARY KEY") {
			return errDuplicateKey
		}
	}
	return err
}

// Factory opens <Dir>/<channel>.db per channel.
type Factory struct {
	Dir    string
	Logger *slog.Logger
}

func (f Factory) OpenChannel(ctx context.Context, channel string) (ports.ChannelStore, error) {
	name, err := FileName(channel)
	if err != nil {
		return nil, err
	}
	return Open(ctx, filepath.Join(f.Dir, name), f.Logger)
}

// FileName derives the database file name of channel: leading '#' removed,
// lower-cased, path separators and parent references rejected. Bytes outside
// [a-z0-9.-] are written as _xx hex so distinct channels never share a file
// and the name never carries DSN syntax such as '?' or '%'.
func FileName(channel string) (string, error) {
	name := strings.TrimLeft(strings.TrimSpace(channel), "#")
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: channel name %q", domainerrors.ErrInvalidArgument, channel)
	}
	lowered := strings.ToLower(name)
	var b strings.Builder
	for i := 0; i < len(lowered); i++ {
		c := lowered[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '.', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String() + ".db", nil
}

var _ ports.ChannelStore = (*Repository)(nil)
var _ ports.StoreFactory = Factory{}
