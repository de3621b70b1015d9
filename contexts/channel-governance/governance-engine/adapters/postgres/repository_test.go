package postgresadapter

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"votebot/contexts/channel-governance/governance-engine/domain/entities"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestSchemaName(t *testing.T) {
	cases := map[string]string{
		"#Governance": "vote_governance",
		"##dev-ops":   "vote_dev_2dops",
		"ops.team":    "vote_ops_2eteam",
		"#a_b9":       "vote_a__b9",
	}
	for channel, want := range cases {
		got, err := SchemaName(channel)
		if err != nil {
			t.Fatalf("schema name %q: %v", channel, err)
		}
		if got != want {
			t.Fatalf("schema name %q: expected %s, got %s", channel, want, got)
		}
	}

	if _, err := SchemaName("#"); !errors.Is(err, domainerrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty channel, got %v", err)
	}

	long, err := SchemaName("#" + strings.Repeat("x", 100))
	if err != nil {
		t.Fatalf("schema name: %v", err)
	}
	if len(long) != maxSchemaLength {
		t.Fatalf("expected schema truncated to %d, got %d", maxSchemaLength, len(long))
	}
}

func TestSchemaNameKeepsChannelsApart(t *testing.T) {
	prefix := "#" + strings.Repeat("x", 80)
	channels := []string{"#a-b", "#a.b", "#a_b", "#a_2db", "#a__b", prefix + "1", prefix + "2"}
	seen := make(map[string]string, len(channels))
	for _, channel := range channels {
		schema, err := SchemaName(channel)
		if err != nil {
			t.Fatalf("schema name %q: %v", channel, err)
		}
		if len(schema) > maxSchemaLength {
			t.Fatalf("schema %s exceeds %d bytes", schema, maxSchemaLength)
		}
		if other, ok := seen[schema]; ok {
			t.Fatalf("channels %q and %q share schema %s", other, channel, schema)
		}
		seen[schema] = channel
	}

	upper, _ := SchemaName("#A-B")
	lower, _ := SchemaName("#a-b")
	if upper != lower {
		t.Fatalf("expected case-insensitive schema, got %s and %s", upper, lower)
	}
}

func TestSchemaStatementsQualifyTables(t *testing.T) {
	statements := schemaStatements("vote_rules")
	if len(statements) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(statements))
	}
	for _, table := range []string{"vote_rules.users", "vote_rules.polls", "vote_rules.votes"} {
		found := false
		for _, stmt := range statements {
			if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS "+table) {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected DDL for %s", table)
		}
	}
}

func TestPostgresErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	foreign := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"})

	if !isUniqueViolation(unique) || isUniqueViolation(foreign) {
		t.Fatalf("unique violation misclassified")
	}
	if !isForeignKeyViolation(foreign) || isForeignKeyViolation(unique) {
		t.Fatalf("foreign key violation misclassified")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain error must not classify as unique violation")
	}
}

func TestPollModelRoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	poll := entities.Poll{
		ID:          7,
		Description: "Adopt rule",
		Creator:     "alice",
		Status:      entities.PollStatusVetoed,
		CreatedAt:   createdAt,
		Duration:    48 * time.Hour,
		VetoedBy:    "bob",
		VetoReason:  "premature",
	}
	row := pollModelFromEntity(poll)
	if row.Duration != int64((48 * time.Hour).Seconds()) {
		t.Fatalf("expected duration stored in seconds, got %d", row.Duration)
	}
	if row.toEntity() != poll {
		t.Fatalf("expected %+v, got %+v", poll, row.toEntity())
	}

	running := pollModelFromEntity(entities.Poll{Description: "x", Creator: "alice"})
	if running.VetoedBy != nil || running.VetoReason != nil {
		t.Fatalf("expected NULL veto columns for running poll")
	}
}
