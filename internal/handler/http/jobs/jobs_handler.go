// Package jobs replaces the teacher's OTLP proxy handler (internal/handler/
// http/proxy) with the cluster's own HTTP surface: submit a job
// synchronously (mirroring ProxyHandler.HandleLogs's sync mode, whose
// response the caller actually waits on) or fire-and-forget (mirroring
// HandleTraces's always-async 202 Accepted path).
package jobs

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/browsercluster/browsercluster/internal/cluster"
	"github.com/browsercluster/browsercluster/internal/provider/fakebrowser"
	"github.com/browsercluster/browsercluster/pkg/logger"
)

// Request is the job payload accepted by both endpoints: a target URL to
// navigate to, and an optional group affinity key consumed only when the
// cluster is configured with ConcurrencyPerGroup.
type Request struct {
	TargetURL string `json:"url"`
	Group     string `json:"group,omitempty"`
}

// URL implements cluster.UsesURL, so skip-duplicate-urls and
// same-domain-delay can see this payload's URL without a custom extractor.
func (r Request) URL() string { return r.TargetURL }

// Result is what a successful job reports back to a synchronous caller.
type Result struct {
	StatusCode int `json:"statusCode"`
	BytesRead  int `json:"bytesRead"`
}

// Handler exposes the cluster over HTTP.
type Handler struct {
	cluster *cluster.Cluster
}

// NewHandler wires a Handler to an already-launched Cluster.
func NewHandler(c *cluster.Cluster) *Handler {
	return &Handler{cluster: c}
}

// GroupOf extracts Request.Group for Options.GroupFunc, so the per-group
// strategy can be configured against this handler's payload shape.
func GroupOf(data any) (string, bool) {
	r, ok := data.(Request)
	if !ok || r.Group == "" {
		return "", false
	}
	return r.Group, true
}

func task(tc *cluster.TaskContext) (any, error) {
	req := tc.Data.(Request)
	page, ok := tc.Page.(*fakebrowser.Page)
	if !ok {
		return nil, errors.New("jobs: page resource is not a *fakebrowser.Page")
	}
	resp, err := page.Goto(context.Background(), req.TargetURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return nil, err
	}
	return Result{StatusCode: resp.StatusCode, BytesRead: int(n)}, nil
}

// HandleExecute handles POST /jobs: submits synchronously and waits for the
// job's terminal outcome, returning its Result as JSON.
func (h *Handler) HandleExecute(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	if req.TargetURL == "" {
		return c.NoContent(http.StatusBadRequest)
	}

	fut := h.cluster.Execute(req, cluster.TaskFunc(task))
	data, err := fut.Wait(c.Request().Context())
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, data)
}

// HandleQueue handles POST /jobs/queue: enqueues for fire-and-forget
// processing (retried per the configured RetryLimit) and returns
// immediately.
func (h *Handler) HandleQueue(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	if req.TargetURL == "" {
		return c.NoContent(http.StatusBadRequest)
	}

	if err := h.cluster.Queue(req, cluster.TaskFunc(task)); err != nil {
		logger.Warn("jobs: queue rejected: %v", err)
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusAccepted)
}

func mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return c.NoContent(http.StatusGatewayTimeout)
	case errors.Is(err, cluster.ErrProgrammer):
		logger.Error("jobs: programmer error: %v", err)
		return c.NoContent(http.StatusInternalServerError)
	case errors.Is(err, cluster.ErrAcquireFailed):
		logger.Error("jobs: resource acquire failed: %v", err)
		return c.NoContent(http.StatusBadGateway)
	default:
		logger.Warn("jobs: task error: %v", err)
		return c.NoContent(http.StatusBadGateway)
	}
}
