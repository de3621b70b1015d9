package entities

import "time"

// DefaultPollDuration is advisory; nothing closes a poll when it elapses.
const DefaultPollDuration = 7 * 24 * time.Hour

type PollStatus string

const (
	PollStatusRunning  PollStatus = "RUNNING"
	PollStatusCanceled PollStatus = "CANCELED"
	// PASSED, TIED and FAILED are reserved for a tally routine that does not
	// exist yet; no transition in this module produces them.
	PollStatusPassed PollStatus = "PASSED"
	PollStatusTied   PollStatus = "TIED"
	PollStatusFailed PollStatus = "FAILED"
	PollStatusVetoed PollStatus = "VETOED"
)

func ParsePollStatus(raw string) (PollStatus, bool) {
	switch status := PollStatus(raw); status {
	case PollStatusRunning, PollStatusCanceled, PollStatusPassed,
		PollStatusTied, PollStatusFailed, PollStatusVetoed:
		return status, true
	default:
		return "", false
	}
}

type Poll struct {
	ID          int64
	Description string
	Creator     string
	Status      PollStatus
	CreatedAt   time.Time
	Duration    time.Duration
	VetoedBy    string
	VetoReason  string
}

func (p Poll) IsRunning() bool {
	return p.Status == PollStatusRunning
}

// EndsAt is the advisory end of the poll.
func (p Poll) EndsAt() time.Time {
	duration := p.Duration
	if duration <= 0 {
		duration = DefaultPollDuration
	}
	return p.CreatedAt.Add(duration)
}
