package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsercluster/browsercluster/internal/cluster"
	"github.com/browsercluster/browsercluster/internal/provider"
)

func launchTestCluster(t *testing.T) *cluster.Cluster {
	t.Helper()
	c, err := cluster.Launch(context.Background(), cluster.Options{
		Concurrency:    cluster.ConcurrencyPerContext,
		MaxConcurrency: 2,
		Timeout:        5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

// importing internal/provider registers the built-in strategies via its
// init(); the blank-looking reference keeps goimports-style tooling from
// dropping the import, the same registration internal/app/app.go pulls in
// with a blank import.
var _ = provider.NewPerContextProvider

func TestJobsHandler_HandleExecute_ReturnsResultJSON(t *testing.T) {
	mockSite := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer mockSite.Close()

	c := launchTestCluster(t)
	handler := NewHandler(c)

	e := echo.New()
	body := `{"url":"` + mockSite.URL + `"}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	require.NoError(t, handler.HandleExecute(ctx))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, len("hello"), result.BytesRead)
}

func TestJobsHandler_HandleExecute_RejectsMissingURL(t *testing.T) {
	c := launchTestCluster(t)
	handler := NewHandler(c)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	require.NoError(t, handler.HandleExecute(ctx))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobsHandler_HandleQueue_Returns202Immediately(t *testing.T) {
	mockSite := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer mockSite.Close()

	c := launchTestCluster(t)
	handler := NewHandler(c)

	e := echo.New()
	body := `{"url":"` + mockSite.URL + `"}`
	req := httptest.NewRequest(http.MethodPost, "/jobs/queue", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	require.NoError(t, handler.HandleQueue(ctx))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	idleCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, c.Idle(idleCtx), "expected the queued job to drain")
}

func TestJobsHandler_HandleExecute_UpstreamErrorMapsToBadGateway(t *testing.T) {
	c := launchTestCluster(t)
	handler := NewHandler(c)

	e := echo.New()
	// An address nothing listens on: the navigate will fail at the
	// transport level.
	body := `{"url":"http://127.0.0.1:1"}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	require.NoError(t, handler.HandleExecute(ctx))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGroupOf(t *testing.T) {
	g, ok := GroupOf(Request{TargetURL: "http://x", Group: "tenant-a"})
	assert.True(t, ok)
	assert.Equal(t, "tenant-a", g)

	_, ok = GroupOf(Request{TargetURL: "http://x"})
	assert.False(t, ok, "expected no group for a request without one")

	_, ok = GroupOf("not a request")
	assert.False(t, ok, "expected GroupOf to reject a non-Request payload")
}
