package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/signald/internal/classification"
	"github.com/fyrsmithlabs/signald/internal/dedup"
	"github.com/fyrsmithlabs/signald/internal/ingest"
	"github.com/fyrsmithlabs/signald/internal/initiatives"
	"github.com/fyrsmithlabs/signald/internal/logging"
	"github.com/fyrsmithlabs/signald/internal/sanitize"
	"github.com/fyrsmithlabs/signald/internal/signal"
	"github.com/fyrsmithlabs/signald/internal/store"
	"github.com/google/go-github/v57/github"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// validateWorkspace rejects malformed :workspace path parameters before
// any handler runs.
func validateWorkspace(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := sanitize.ValidateWorkspaceID(c.Param("workspace")); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return next(c)
	}
}

// handleHealth reports liveness and whether storage answers.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Storage: "ok"}
	if st := s.services.Store(); st != nil {
		if err := st.Ping(c.Request().Context()); err != nil {
			s.logger.Warn("health check: storage unavailable", zap.Error(err))
			resp.Status, resp.Storage = "degraded", "unavailable"
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleIngest accepts a signal from an API client.
func (s *Server) handleIngest(c echo.Context) error {
	in, err := s.readPayload(c)
	if err != nil {
		return err
	}
	in.SourceType = "api"
	return s.ingest(c, in)
}

// handleWebhook accepts a signal from a generic webhook source.
func (s *Server) handleWebhook(c echo.Context) error {
	source := c.Param("source")
	if err := sanitize.ValidateSource(source); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in, err := s.readPayload(c)
	if err != nil {
		return err
	}
	in.SourceType = source
	return s.ingest(c, in)
}

// handleGitHubWebhook accepts signed GitHub issue and comment events.
func (s *Server) handleGitHubWebhook(c echo.Context) error {
	if s.config.GitHubSecret == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "github webhook not configured")
	}
	req := c.Request()
	payload, err := github.ValidatePayload(req, []byte(s.config.GitHubSecret))
	if err != nil {
		s.logger.Warn("invalid webhook signature", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	in, err := ingest.ParseGitHubEvent(github.WebHookType(req), payload)
	if errors.Is(err, ingest.ErrIgnoredEvent) {
		s.logger.Debug("ignoring github event", zap.String("type", github.WebHookType(req)), zap.Error(err))
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
	if err != nil {
		return s.httpError(c, err)
	}
	return s.ingest(c, in)
}

func (s *Server) readPayload(c echo.Context) (ingest.Input, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return ingest.Input{}, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	in, err := ingest.ParsePayload(c.Request().Header.Get(echo.HeaderContentType), body)
	if err != nil {
		return ingest.Input{}, s.httpError(c, err)
	}
	return in, nil
}

func (s *Server) ingest(c echo.Context, in ingest.Input) error {
	in.WorkspaceID = c.Param("workspace")
	ctx := logging.WithWorkspaceID(c.Request().Context(), in.WorkspaceID)
	res, err := s.services.Ingest().Ingest(ctx, in)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusAccepted, res)
}

func (s *Server) handleGetSignal(c echo.Context) error {
	sig, err := s.services.Store().GetSignal(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, sig)
}

// handleProcess enriches one signal and returns it.
func (s *Server) handleProcess(c echo.Context) error {
	id := c.Param("id")
	ctx := logging.WithSignalID(c.Request().Context(), id)
	if err := s.services.Processor().Process(ctx, id); err != nil {
		return s.httpError(c, err)
	}
	sig, err := s.services.Store().GetSignal(ctx, id)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, sig)
}

func (s *Server) handleProcessBatch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	ids := req.IDs
	if len(ids) == 0 {
		if req.WorkspaceID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "ids or workspaceId is required")
		}
		var err error
		ids, err = s.services.Store().ListUnprocessedIDs(ctx, req.WorkspaceID, req.Limit)
		if err != nil {
			return s.httpError(c, err)
		}
	}
	return c.JSON(http.StatusOK, s.services.Processor().ProcessBatch(ctx, ids))
}

func (s *Server) handleClassify(c echo.Context) error {
	id := c.Param("id")
	ctx := logging.WithSignalID(c.Request().Context(), id)
	result, err := s.services.Classifier().ClassifySignal(ctx, id)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleSimilar(c echo.Context) error {
	matches, err := s.services.Dedup().FindSimilarSignals(c.Request().Context(), c.Param("id"), queryInt(c, "limit", 10))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, matches)
}

func (s *Server) handleMerge(c echo.Context) error {
	var req MergeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	primary := req.PrimaryID
	var err error
	if req.Auto {
		primary, err = s.services.Dedup().MergePair(ctx, req.PrimaryID, req.SecondaryID, req.ActorID)
	} else {
		err = s.services.Dedup().Merge(ctx, req.PrimaryID, req.SecondaryID, req.ActorID)
	}
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, MergeResponse{PrimaryID: primary})
}

func (s *Server) handleDismiss(c echo.Context) error {
	var req DismissRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.services.Dedup().Dismiss(c.Request().Context(), req.SignalID, req.OtherID, req.ActorID); err != nil {
		return s.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDuplicates(c echo.Context) error {
	pairs, err := s.services.Dedup().FindDuplicatePairs(c.Request().Context(), c.Param("workspace"), queryInt(c, "limit", 50))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, pairs)
}

func (s *Server) handleClusters(c echo.Context) error {
	res, err := s.services.Synthesis().Synthesize(c.Request().Context(), c.Param("workspace"), queryInt(c, "minSize", 0))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// handleNotifyClusters synthesizes the workspace and runs every cluster
// through the notification filter.
func (s *Server) handleNotifyClusters(c echo.Context) error {
	ws := c.Param("workspace")
	ctx := logging.WithWorkspaceID(c.Request().Context(), ws)
	res, err := s.services.Synthesis().Synthesize(ctx, ws, queryInt(c, "minSize", 0))
	if err != nil {
		return s.httpError(c, err)
	}

	out := NotifyResponse{Summary: res.Summary, Results: make([]ClusterNotification, 0, len(res.Clusters))}
	for _, cluster := range res.Clusters {
		decision, err := s.services.Notifier().NotifyClusterDiscovered(ctx, cluster)
		if err != nil {
			return s.httpError(c, err)
		}
		out.Results = append(out.Results, ClusterNotification{ClusterID: cluster.ID, Decision: decision})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleNotifications(c echo.Context) error {
	list, err := s.services.Store().ListNotifications(c.Request().Context(), c.Param("workspace"), queryInt(c, "limit", 50))
	if err != nil {
		return s.httpError(c, err)
	}
	if list == nil {
		list = []*signal.Notification{}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleUpsertInitiative(c echo.Context) error {
	var req InitiativeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in := &signal.Initiative{
		ID:          c.Param("id"),
		WorkspaceID: c.Param("workspace"),
		Name:        req.Name,
		Description: req.Description,
	}

	resp := InitiativeResponse{Initiative: in}
	err := s.services.Initiatives().Upsert(c.Request().Context(), in)
	switch {
	case errors.Is(err, initiatives.ErrNotEmbedded):
		resp.Warning = err.Error()
	case err != nil:
		return s.httpError(c, err)
	}
	resp.Embedded = len(in.Embedding) > 0
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListInitiatives(c echo.Context) error {
	list, err := s.services.Initiatives().List(c.Request().Context(), c.Param("workspace"))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetInitiative(c echo.Context) error {
	in, err := s.services.Initiatives().Get(c.Request().Context(), c.Param("workspace"), c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, in)
}

// handleReembedInitiatives retries embeddings for initiatives stored while
// the embedding provider was down.
func (s *Server) handleReembedInitiatives(c echo.Context) error {
	n, err := s.services.Initiatives().Reembed(c.Request().Context(), c.Param("workspace"))
	resp := ReembedResponse{Embedded: n}
	switch {
	case errors.Is(err, initiatives.ErrNotEmbedded):
		resp.Warning = err.Error()
	case err != nil:
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// httpError maps pipeline errors to HTTP statuses. Unexpected errors are
// logged and hidden from the client.
func (s *Server) httpError(c echo.Context, err error) error {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ingest.ErrInvalidInput),
		errors.Is(err, dedup.ErrInvalidInput),
		errors.Is(err, initiatives.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, dedup.ErrInvalidMerge),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, classification.ErrNoEmbedding):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
	}
	s.logger.Error("request failed",
		zap.String("path", c.Path()),
		zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func queryInt(c echo.Context, name string, def int) int {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
