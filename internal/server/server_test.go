package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflux/fluxdiff/fluxdiff"
	"github.com/agentflux/fluxdiff/internal/backend"
	"github.com/agentflux/fluxdiff/internal/codec"
	"github.com/agentflux/fluxdiff/internal/config"
	"github.com/agentflux/fluxdiff/internal/observability"
	"github.com/agentflux/fluxdiff/model"
)

type fixedRefiner struct {
	out string
	err error
}

func (f fixedRefiner) Name() string { return "fixed" }

func (f fixedRefiner) Refine(context.Context, backend.Request) (string, error) {
	return f.out, f.err
}

func newTestServer(t *testing.T, refiner backend.Refiner, opts ...func(*Server)) *httptest.Server {
	t.Helper()
	metrics := observability.NewMetrics()
	app := fluxdiff.New(refiner, fluxdiff.WithMetrics(metrics))
	srv := New(config.ServerConfig{Addr: ":0", MetricsEnabled: true}, app, nil, metrics)
	for _, opt := range opts {
		opt(srv)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, path string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	_, err = uuid.Parse(resp.Header.Get(RequestIDHeader))
	assert.NoError(t, err)
}

func TestRequestIDIsPropagated(t *testing.T) {
	ts := newTestServer(t, nil)
	id := uuid.NewString()
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, id)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, id, resp.Header.Get(RequestIDHeader))
}

func TestPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/agent/process", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestProcess(t *testing.T) {
	original := map[string]string{"agent.py": "prompt = 'a'\n", "tasks.py": "t = 1\n"}
	refined := codec.Encode(model.Bundle{"agent.py": "prompt = 'a clear prompt'\n"})
	ts := newTestServer(t, fixedRefiner{out: refined})

	resp := post(t, ts, "/api/agent/process", map[string]any{
		"refinementType":     "refine_prompts",
		"code":               codec.Encode(original),
		"brokenDownOriginal": original,
		"allowedModels":      []string{"gemini-2.5-flash"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out processResponse
	decodeJSON(t, resp, &out)
	assert.Equal(t, resp.Header.Get(RequestIDHeader), out.RequestID)
	assert.Equal(t, refined, out.RefinedGraphCode)
	assert.Equal(t, map[string]string{"agent.py": "prompt = 'a clear prompt'\n", "tasks.py": ""}, out.BrokenDownRefined)
	assert.Contains(t, out.DiffReport["agent.py"], "+prompt = &#39;a clear prompt&#39;")
	assert.Contains(t, out.DiffReport["tasks.py"], "-t = 1")
	require.NotEmpty(t, out.DiffLines["agent.py"])
	assert.Equal(t, model.Header, out.DiffLines["agent.py"][0].Kind)
	assert.NotNil(t, out.Diagnostics)
}

func TestProcess_InvalidRefinementType(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := post(t, ts, "/api/agent/process", map[string]any{"refinementType": "nope", "code": "%%%%a:\n$$$$\n1\n$$$$"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out map[string]string
	decodeJSON(t, resp, &out)
	assert.Contains(t, out["error"], "invalid refinementType")
}

func TestProcess_MissingCode(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := post(t, ts, "/api/agent/process", map[string]any{"refinementType": "refine_prompts"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcess_BackendError(t *testing.T) {
	ts := newTestServer(t, fixedRefiner{err: errors.New("quota exceeded")})
	resp := post(t, ts, "/api/agent/process", map[string]any{"refinementType": "refine_prompts", "code": "%%%%a:\n$$$$\n1\n$$$$"})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var out map[string]string
	decodeJSON(t, resp, &out)
	assert.Contains(t, out["error"], "quota exceeded")

	scrape, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer scrape.Body.Close()
	body, err := io.ReadAll(scrape.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fluxdiff_backend_errors_total{provider="fixed"} 1`)
	assert.Contains(t, string(body), `fluxdiff_http_requests_total{route="POST /api/agent/process",status="5xx"} 1`)
}

func TestProcess_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/api/agent/process", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPayloadTooLarge(t *testing.T) {
	ts := newTestServer(t, nil, func(s *Server) { s.maxBody = 64 })
	big := `{"code":"` + strings.Repeat("x", 128) + `"}`
	resp, err := http.Post(ts.URL+"/api/bundle/decode", "application/json", strings.NewReader(big))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestDecodeEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := post(t, ts, "/api/bundle/decode", map[string]string{"code": "%%%%:\n$$$$\nx\n$$$$\n%%%%f.txt:\n$$$\nhello\n$$$\n%%%%f.txt"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out decodeResponse
	decodeJSON(t, resp, &out)
	assert.Equal(t, map[string]string{"f.txt": "hello"}, out.Files)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, codec.EmptyFilename, out.Diagnostics[0].Kind)
}

func TestEncodeEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := post(t, ts, "/api/bundle/encode", map[string]any{"files": map[string]string{"f.txt": "hello"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out encodeResponse
	decodeJSON(t, resp, &out)
	assert.Equal(t, "%%%%f.txt:\n$$$$\nhello\n$$$$\n%%%%f.txt", out.Code)

	resp = post(t, ts, "/api/bundle/encode", map[string]any{"files": map[string]string{"bad:name": "x"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDiffEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := post(t, ts, "/api/diff", map[string]string{"filename": "x.py", "original": "a\nb\n", "refined": "x\ny\n"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out diffResponse
	decodeJSON(t, resp, &out)
	assert.Equal(t, 2, out.Added)
	assert.Equal(t, 2, out.Deleted)
	assert.Equal(t, "--- a/x.py", out.Lines[0].Text)
	assert.True(t, strings.HasPrefix(out.HTML, `<div style="color:gray;">--- a/x.py</div>`))
}

func TestMetricsDisabled(t *testing.T) {
	app := fluxdiff.New(nil)
	ts := httptest.NewServer(New(config.ServerConfig{}, app, nil, observability.NewMetrics()).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := New(config.ServerConfig{Addr: "127.0.0.1:0"}, fluxdiff.New(nil), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
