package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/pipeline"
	"github.com/fyrsmithlabs/sitegen/internal/quote"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
	"github.com/fyrsmithlabs/sitegen/internal/workflows"
)

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStartRun(c echo.Context) error {
	var facts memo.InputFacts
	if err := c.Bind(&facts); err != nil {
		s.logger.Warn("invalid start request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	id, err := s.pipeline.Start(c.Request().Context(), facts)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusCreated, StartRunResponse{RunID: id})
}

func (s *Server) handleGetRun(c echo.Context) error {
	st, err := s.pipeline.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, newRunResponse(st))
}

func (s *Server) handleAdvance(c echo.Context) error {
	var req AdvanceRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	var opts []pipeline.AdvanceOption
	if req.Tier != "" || req.Force {
		tier, err := parseTier(req.Tier)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if req.Force {
			opts = append(opts, pipeline.WithForcedRerun(tier))
		} else {
			opts = append(opts, pipeline.WithTier(tier))
		}
	}

	st, err := s.pipeline.Advance(c.Request().Context(), c.Param("id"), opts...)
	return s.runResult(c, st, err)
}

func (s *Server) handleResume(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	if s.dispatcher != nil {
		if _, err := s.pipeline.Get(ctx, id); err != nil {
			return s.httpError(err)
		}
		wfID, err := s.dispatcher.Resume(ctx, workflows.PipelineRunInput{RunID: id})
		if err != nil {
			return s.httpError(err)
		}
		return c.JSON(http.StatusAccepted, ResumeResponse{RunID: id, WorkflowID: wfID})
	}
	st, err := s.pipeline.Resume(ctx, id)
	return s.runResult(c, st, err)
}

func (s *Server) handleCancel(c echo.Context) error {
	st, err := s.pipeline.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, newRunResponse(st))
}

func (s *Server) handleSkip(c echo.Context) error {
	var req SkipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	name, err := stage.ParseName(req.Stage)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := s.pipeline.Skip(c.Request().Context(), c.Param("id"), name)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, newRunResponse(st))
}

func (s *Server) handleRunQuote(c echo.Context) error {
	opts := pipeline.QuoteOptions{
		Urgency: quote.Urgency(c.QueryParam("urgency")),
	}
	var err error
	if opts.Maintenance, err = boolParam(c, "maintenance"); err != nil {
		return err
	}
	if opts.IncludeDomain, err = boolParam(c, "domain"); err != nil {
		return err
	}
	if raw := c.QueryParam("add_ons"); raw != "" {
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				opts.AddOns = append(opts.AddOns, a)
			}
		}
	}

	q, err := s.pipeline.Quote(c.Request().Context(), c.Param("id"), opts)
	if err != nil {
		return s.httpError(err)
	}
	if c.QueryParam("format") == "text" {
		return c.String(http.StatusOK, quote.FormatText(q))
	}
	return c.JSON(http.StatusOK, q)
}

func (s *Server) handleExport(c echo.Context) error {
	b, err := s.pipeline.Export(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.httpError(err)
	}
	if c.QueryParam("format") == "yaml" {
		data, err := yaml.Marshal(b)
		if err != nil {
			return s.httpError(err)
		}
		return c.Blob(http.StatusOK, "application/yaml", data)
	}
	return c.JSON(http.StatusOK, b)
}

func (s *Server) handleQuote(c echo.Context) error {
	var req quote.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.IssuedAt.IsZero() {
		req.IssuedAt = time.Now()
	}
	q, err := quote.Generate(s.book(), req)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (s *Server) handleScore(c echo.Context) error {
	var req ScoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Pages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "pages field is required")
	}
	if req.MinScore != nil {
		ok, report := s.scorer.QuickCheck(req.Pages, *req.MinScore)
		return c.JSON(http.StatusOK, ScoreResponse{Report: report, MeetsMinimum: &ok})
	}
	return c.JSON(http.StatusOK, ScoreResponse{Report: s.scorer.Score(req.Pages)})
}

// runResult renders the state left by Advance or Resume. A stage failure
// that was committed is reported as the failed run, not as an HTTP error.
func (s *Server) runResult(c echo.Context, st *pipeline.State, err error) error {
	if err == nil || (st != nil && st.Status.Terminal() && isStageFailure(err)) {
		return c.JSON(http.StatusOK, newRunResponse(st))
	}
	return s.httpError(err)
}

func isStageFailure(err error) bool {
	_, ok := stage.AsError(err)
	return ok || memo.IsViolation(err) || memo.IsValidation(err)
}

// httpError maps domain errors to HTTP errors.
func (s *Server) httpError(err error) error {
	var gate *pipeline.QualityGateError
	switch {
	case errors.As(err, &gate):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]any{
			"message": err.Error(),
			"report":  gate.Report,
		})
	case memo.IsValidation(err), quote.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrInvalidSkip):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case pipeline.IsConflict(err):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case memo.IsSchemaMismatch(err):
		s.logger.Error("stored run failed verification", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func parseTier(s string) (stage.ModelTier, error) {
	if s == "" {
		return "", nil
	}
	return stage.ParseTier(s)
}

func boolParam(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, name+" must be a boolean")
	}
	return v, nil
}
