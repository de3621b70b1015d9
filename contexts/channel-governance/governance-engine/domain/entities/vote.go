package entities

import "strings"

type Decision string

const (
	DecisionNone    Decision = "NONE"
	DecisionAbstain Decision = "ABSTAIN"
	DecisionYes     Decision = "YES"
	DecisionNo      Decision = "NO"
)

func ParseDecision(raw string) (Decision, bool) {
	switch decision := Decision(strings.ToUpper(strings.TrimSpace(raw))); decision {
	case DecisionNone, DecisionAbstain, DecisionYes, DecisionNo:
		return decision, true
	default:
		return "", false
	}
}

// Vote is one user's decision on one poll. (PollID, Voter) is unique.
type Vote struct {
	PollID   int64
	Voter    string
	Decision Decision
	Comment  string
}

// DecisionTally holds raw per-decision counts for a poll. It carries no
// verdict.
type DecisionTally struct {
	Yes     int
	No      int
	Abstain int
	None    int
}

func TallyDecisions(votes []Vote) DecisionTally {
	var tally DecisionTally
	for _, vote := range votes {
		switch vote.Decision {
		case DecisionYes:
			tally.Yes++
		case DecisionNo:
			tally.No++
		case DecisionAbstain:
			tally.Abstain++
		default:
			tally.None++
		}
	}
	return tally
}
