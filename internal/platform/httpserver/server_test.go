package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	governanceengine "votebot/contexts/channel-governance/governance-engine"
	consoleadapter "votebot/contexts/channel-governance/governance-engine/adapters/console"
	"votebot/contexts/channel-governance/governance-engine/application/channels"
	"votebot/contexts/channel-governance/governance-engine/application/commands"
	governancehttp "votebot/contexts/channel-governance/governance-engine/transport/http"
)

func newGovernanceServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	transport := consoleadapter.NewTransport(&bytes.Buffer{}, nil, []string{"alice"}, nil)
	module := governanceengine.NewInMemoryModule(transport, []channels.Settings{{Name: "#gov"}}, nil)
	t.Cleanup(func() { _ = module.Channels.Close() })

	if err := module.Channels.OpenConfigured(ctx); err != nil {
		t.Fatalf("open channels: %v", err)
	}
	for _, text := range []string{
		"!useradd alice ADMIN",
		"!useradd bob USER",
		"!vcall adopt rule 1",
		"!vcall adopt rule 2",
	} {
		send(t, module, "alice", text)
	}
	send(t, module, "bob", "!vyes 1 looks good")
	send(t, module, "alice", "!vno 1")
	send(t, module, "alice", "!vcancel 2")

	return New(module, nil, "")
}

func send(t *testing.T, module governanceengine.Module, nick string, text string) {
	t.Helper()
	if err := module.Channels.Dispatch(context.Background(), "#gov", commands.Message{Nick: nick, Text: text}); err != nil {
		t.Fatalf("dispatch %q: %v", text, err)
	}
	for _, engine := range module.Channels.Engines() {
		engine.Wait()
	}
}

func get(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	server := newGovernanceServer(t)
	rec := get(t, server, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp governancehttp.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Channels != 1 {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}

func TestListChannels(t *testing.T) {
	server := newGovernanceServer(t)
	rec := get(t, server, "/v1/channels")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp governancehttp.ListChannelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(resp.Items))
	}
	item := resp.Items[0]
	if item.Channel != "#gov" || item.ActiveUsers != 2 || item.RunningPolls != 1 {
		t.Fatalf("unexpected channel item: %+v", item)
	}
}

func TestListPollsFiltersByStatus(t *testing.T) {
	server := newGovernanceServer(t)

	rec := get(t, server, "/v1/channels/gov/polls")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var all governancehttp.ListPollsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if all.Channel != "#gov" || len(all.Items) != 2 {
		t.Fatalf("expected 2 polls on #gov, got %+v", all)
	}

	rec = get(t, server, "/v1/channels/%23gov/polls?status=running")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var running governancehttp.ListPollsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &running); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(running.Items) != 1 || running.Items[0].PollID != 1 || running.Items[0].Status != "RUNNING" {
		t.Fatalf("unexpected running polls: %+v", running.Items)
	}
}

func TestGetPollReturnsVotesAndCounts(t *testing.T) {
	server := newGovernanceServer(t)
	rec := get(t, server, "/v1/channels/gov/polls/1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp governancehttp.PollDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Poll.Description != "adopt rule 1" || resp.Poll.Creator != "alice" {
		t.Fatalf("unexpected poll: %+v", resp.Poll)
	}
	if len(resp.Votes) != 2 {
		t.Fatalf("expected 2 votes, got %d", len(resp.Votes))
	}
	if resp.Counts.Yes != 1 || resp.Counts.No != 1 || resp.Counts.Total != 2 {
		t.Fatalf("unexpected counts: %+v", resp.Counts)
	}
}

func TestErrorResponses(t *testing.T) {
	server := newGovernanceServer(t)
	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{name: "unknown channel", path: "/v1/channels/nowhere/polls", status: http.StatusNotFound, code: "channel_not_found"},
		{name: "unknown poll", path: "/v1/channels/gov/polls/99", status: http.StatusNotFound, code: "poll_not_found"},
		{name: "non numeric poll id", path: "/v1/channels/gov/polls/abc", status: http.StatusBadRequest, code: "invalid_poll_id"},
		{name: "zero poll id", path: "/v1/channels/gov/polls/0", status: http.StatusBadRequest, code: "invalid_poll_id"},
		{name: "bad limit", path: "/v1/channels/gov/polls?limit=-1", status: http.StatusBadRequest, code: "invalid_limit"},
		{name: "bad status", path: "/v1/channels/gov/polls?status=paused", status: http.StatusBadRequest, code: "invalid_request"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, server, tc.path)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			var resp governancehttp.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, resp.Code)
			}
		})
	}
}

func TestSwaggerServesReadAPIDescription(t *testing.T) {
	server := newGovernanceServer(t)

	rec := get(t, server, "/swagger/doc.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode doc.json: %v", err)
	}
	if doc.Info.Title != "votebot read API" {
		t.Fatalf("unexpected title %q", doc.Info.Title)
	}
	for _, path := range []string{
		"/healthz",
		"/v1/channels",
		"/v1/channels/{channel}/polls",
		"/v1/channels/{channel}/polls/{poll_id}",
	} {
		if _, ok := doc.Paths[path]; !ok {
			t.Fatalf("doc.json is missing %s", path)
		}
	}

	if rec := get(t, server, "/swagger/index.html"); rec.Code != http.StatusOK {
		t.Fatalf("expected swagger UI, got %d", rec.Code)
	}
}
