package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Channels int    `json:"channels"`
}

type ChannelItem struct {
	Channel              string `json:"channel"`
	Prefix               string `json:"prefix"`
	ActiveUsers          int    `json:"active_users"`
	PendingConfirmations int    `json:"pending_confirmations"`
	RunningPolls         int    `json:"running_polls"`
}

type ListChannelsResponse struct {
	Items []ChannelItem `json:"items"`
}

type ListPollsRequest struct {
	Status string
	Limit  int
}

type PollItem struct {
	PollID      int64  `json:"poll_id"`
	Description string `json:"description"`
	Creator     string `json:"creator"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	EndsAt      string `json:"ends_at"`
	VetoedBy    string `json:"vetoed_by,omitempty"`
	VetoReason  string `json:"veto_reason,omitempty"`
}

type ListPollsResponse struct {
	Channel string     `json:"channel"`
	Items   []PollItem `json:"items"`
}

type VoteItem struct {
	Voter    string `json:"voter"`
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
}

type DecisionCounts struct {
	Yes     int `json:"yes"`
	No      int `json:"no"`
	Abstain int `json:"abstain"`
	None    int `json:"none"`
	Total   int `json:"total"`
}

type PollDetailResponse struct {
	Channel string         `json:"channel"`
	Poll    PollItem       `json:"poll"`
	Votes   []VoteItem     `json:"votes"`
	Counts  DecisionCounts `json:"counts"`
}
