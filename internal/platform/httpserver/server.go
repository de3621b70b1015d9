package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	governanceengine "votebot/contexts/channel-governance/governance-engine"
	governanceerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
	governancehttp "votebot/contexts/channel-governance/governance-engine/transport/http"
	_ "votebot/internal/platform/httpserver/docs"
)

const (
	defaultPollLimit = 50
	maxPollLimit     = 500
	shutdownTimeout  = 5 * time.Second
)

type Server struct {
	router     chi.Router
	logger     *slog.Logger
	addr       string
	governance governanceengine.Module
}

func New(governance governanceengine.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		router:     chi.NewRouter(),
		logger:     logger,
		addr:       addr,
		governance: governance,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("http server stopping",
			"event", "http_server_stopping",
			"module", "internal/platform/httpserver",
			"layer", "platform",
		)
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/v1/channels", func(r chi.Router) {
		r.Get("/", s.handleListChannels)
		r.Get("/{channel}/polls", s.handleListPolls)
		r.Get("/{channel}/polls/{poll_id}", s.handleGetPoll)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.HealthHandler(r.Context())
	if err != nil {
		s.writeGovernanceDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.ListChannelsHandler(r.Context())
	if err != nil {
		s.writeGovernanceDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := governancehttp.ListPollsRequest{
		Status: query.Get("status"),
		Limit:  defaultPollLimit,
	}
	if limitRaw := query.Get("limit"); limitRaw != "" {
		limit, err := strconv.Atoi(limitRaw)
		if err != nil || limit <= 0 || limit > maxPollLimit {
			writeGovernanceError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer between 1 and 500")
			return
		}
		req.Limit = limit
	}

	resp, err := s.governance.Handler.ListPollsHandler(r.Context(), channelParam(r), req)
	if err != nil {
		s.writeGovernanceDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	rawID := strings.TrimPrefix(chi.URLParam(r, "poll_id"), "#")
	pollID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || pollID <= 0 {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_poll_id", "poll_id must be a positive integer")
		return
	}

	resp, err := s.governance.Handler.PollDetailHandler(r.Context(), channelParam(r), pollID)
	if err != nil {
		s.writeGovernanceDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// channelParam accepts the channel with or without its leading '#', since
// a literal '#' cannot travel unescaped in a path.
func channelParam(r *http.Request) string {
	channel := strings.TrimSpace(chi.URLParam(r, "channel"))
	if channel != "" && !strings.HasPrefix(channel, "#") {
		channel = "#" + channel
	}
	return channel
}

func (s *Server) writeGovernanceDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, governanceerrors.ErrChannelNotFound):
		writeGovernanceError(w, http.StatusNotFound, "channel_not_found", err.Error())
	case errors.Is(err, governanceerrors.ErrPollNotFound):
		writeGovernanceError(w, http.StatusNotFound, "poll_not_found", err.Error())
	case errors.Is(err, governanceerrors.ErrInvalidArgument):
		writeGovernanceError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.logger.Error("governance request failed",
			"event", "http_governance_request_failed",
			"module", "internal/platform/httpserver",
			"layer", "transport",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err.Error(),
		)
		writeGovernanceError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeGovernanceError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, governancehttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
