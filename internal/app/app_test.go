package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	config "github.com/hanpama/graphcms/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	cfg.Objects.Driver = "memory"
	cfg.Upload.Secret = "test-secret"
	cfg.Auth.AdminPassword = "pw"
	cfg.Metrics.Enabled = true
	return cfg
}

func setup(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	ctx := context.Background()
	a, err := New(ctx, testConfig(), MemoryStores(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return a, srv
}

type gqlResponse struct {
	Data   map[string]any   `json:"data"`
	Errors []map[string]any `json:"errors"`
}

func query(t *testing.T, srv *httptest.Server, token, q string) (int, gqlResponse) {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"query": q})
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/graphql", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out gqlResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestNotReadyBeforeStart(t *testing.T) {
	_, srv := setup(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	status, out := query(t, srv, "", `{ item { count } }`)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "schema not ready", out.Errors[0]["message"])
}

func TestEndToEnd(t *testing.T) {
	a, srv := setup(t)
	require.NoError(t, a.Start(context.Background()))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, out := query(t, srv, "", `{ user { auth(username: "admin", password: "pw") { token roles } } }`)
	require.Empty(t, out.Errors)
	session := out.Data["user"].(map[string]any)["auth"].(map[string]any)
	token := session["token"].(string)
	require.Equal(t, []any{"ADMIN"}, session["roles"])

	_, out = query(t, srv, "", `{ item { add(payload: {title: "Tea"}) } }`)
	require.Len(t, out.Errors, 1)
	require.Equal(t, "UNAUTHENTICATED", out.Errors[0]["extensions"].(map[string]any)["code"])

	_, out = query(t, srv, token, `{ item { add(payload: {title: "Tea"}) } }`)
	require.Empty(t, out.Errors)

	_, out = query(t, srv, "", `{ item { search(keyword: "tea") { total } } }`)
	require.Empty(t, out.Errors)
	require.EqualValues(t, 1, out.Data["item"].(map[string]any)["search"].(map[string]any)["total"])

	_, out = query(t, srv, token, `{ currentUser { username } template { get(id: "000000000000000000000") { name } } }`)
	require.Empty(t, out.Errors)
	require.Equal(t, "admin", out.Data["currentUser"].(map[string]any)["username"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	metricsBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(metricsBody), `graphcms_authorization_denied_total{anonymous="true",required="ADMIN"} 1`)
	require.Contains(t, string(metricsBody), "graphcms_schema_ready 1")
}

func TestStartIsIdempotentForSeeds(t *testing.T) {
	a, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Modules().Seed(ctx, testConfig()))
	n, err := a.Modules().Users.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDocument(t *testing.T) {
	doc, err := Document(testConfig())
	require.NoError(t, err)
	for _, want := range []string{"directive @auth", "scalar JSON", "type ItemContext", "type TemplateContext", "type UserContext", "type FileContext", "type KeyContext"} {
		require.True(t, strings.Contains(doc, want), want)
	}
}
