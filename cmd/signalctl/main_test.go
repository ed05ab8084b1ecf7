package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	body   map[string]any
}

// stubServer answers every request with status and body, recording it.
func stubServer(t *testing.T, status int, body string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func execute(t *testing.T, serverURL, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--server", serverURL}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		stdin      string
		response   string
		wantMethod string
		wantPath   string
		wantQuery  string
		wantBody   map[string]any
	}{
		{
			name:       "health",
			args:       []string{"health"},
			response:   `{"status":"ok","storage":"ok"}`,
			wantMethod: http.MethodGet,
			wantPath:   "/health",
		},
		{
			name:       "ingest argument",
			args:       []string{"ingest", "-w", "acme", "--severity", "high", "--tag", "exports", "Export is slow"},
			response:   `{"signalId":"s1","created":true}`,
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/workspaces/acme/signals",
			wantBody: map[string]any{
				"verbatim": "Export is slow", "severity": "high", "frequency": "",
				"userSegment": "", "sourceRef": "", "tags": []any{"exports"},
			},
		},
		{
			name:       "ingest stdin",
			args:       []string{"ingest", "-"},
			stdin:      "  from a file \n",
			response:   `{"signalId":"s1","created":true}`,
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/workspaces/default/signals",
			wantBody: map[string]any{
				"verbatim": "from a file", "severity": "", "frequency": "",
				"userSegment": "", "sourceRef": "",
			},
		},
		{
			name:       "process one",
			args:       []string{"process", "s1"},
			response:   `{"id":"s1"}`,
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/signals/s1/process",
		},
		{
			name:       "process workspace",
			args:       []string{"process", "-w", "acme", "--limit", "5"},
			response:   `{"processed":5,"failed":0}`,
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/signals/process",
			wantBody:   map[string]any{"workspaceId": "acme", "limit": float64(5)},
		},
		{
			name:       "process ids",
			args:       []string{"process", "a", "b"},
			response:   `{"processed":2,"failed":0}`,
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/signals/process",
			wantBody:   map[string]any{"ids": []any{"a", "b"}},
		},
		{
			name:       "classify",
			args:       []string{"classify", "s1"},
			response:   `{"method":"embedding"}`,
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/signals/s1/classify",
		},
		{
			name:       "similar",
			args:       []string{"similar", "s1", "--limit", "3"},
			response:   `[]`,
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/signals/s1/similar",
			wantQuery:  "limit=3",
		},
		{
			name:       "merge",
			args:       []string{"merge", "a", "b", "--actor", "pm", "--auto"},
			response:   `{"primaryId":"a"}`,
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/signals/merge",
			wantBody:   map[string]any{"primaryId": "a", "secondaryId": "b", "actorId": "pm", "auto": true},
		},
		{
			name:       "duplicates",
			args:       []string{"duplicates", "-w", "acme"},
			response:   `[]`,
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/workspaces/acme/duplicates",
			wantQuery:  "limit=50",
		},
		{
			name:       "clusters",
			args:       []string{"clusters", "--min-size", "3"},
			response:   `{"clusters":[],"summary":"No signal clusters found."}`,
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/workspaces/default/clusters",
			wantQuery:  "minSize=3",
		},
		{
			name:       "clusters notify",
			args:       []string{"clusters", "--notify"},
			response:   `{"summary":"No signal clusters found.","results":[]}`,
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/workspaces/default/clusters/notify",
		},
		{
			name:       "notifications",
			args:       []string{"notifications", "--limit", "5"},
			response:   `[]`,
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/workspaces/default/notifications",
			wantQuery:  "limit=5",
		},
		{
			name:       "initiative set",
			args:       []string{"initiative", "set", "exports", "Faster exports", "--description", "CSV speed"},
			response:   `{"embedded":true}`,
			wantMethod: http.MethodPut,
			wantPath:   "/api/v1/workspaces/default/initiatives/exports",
			wantBody:   map[string]any{"name": "Faster exports", "description": "CSV speed"},
		},
		{
			name:       "initiative list",
			args:       []string{"initiative", "list"},
			response:   `[]`,
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/workspaces/default/initiatives",
		},
		{
			name:       "initiative get",
			args:       []string{"initiative", "get", "exports"},
			response:   `{"id":"exports"}`,
			wantMethod: http.MethodGet,
			wantPath:   "/api/v1/workspaces/default/initiatives/exports",
		},
		{
			name:       "initiative reembed",
			args:       []string{"initiative", "reembed", "-w", "acme"},
			response:   `{"embedded":2}`,
			wantMethod: http.MethodPost,
			wantPath:   "/api/v1/workspaces/acme/initiatives/reembed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := stubServer(t, http.StatusOK, tt.response)
			_, err := execute(t, srv.URL, tt.stdin, tt.args...)
			require.NoError(t, err)
			require.Len(t, *calls, 1)

			got := (*calls)[0]
			assert.Equal(t, tt.wantMethod, got.method)
			assert.Equal(t, tt.wantPath, got.path)
			assert.Equal(t, tt.wantQuery, got.query)
			if tt.wantBody != nil {
				assert.Equal(t, tt.wantBody, got.body)
			}
		})
	}
}

func TestDismiss_NoContent(t *testing.T) {
	srv, calls := stubServer(t, http.StatusNoContent, "")
	out, err := execute(t, srv.URL, "", "dismiss", "a", "b", "--actor", "pm")
	require.NoError(t, err)
	assert.Equal(t, "Dismissed\n", out)
	require.Len(t, *calls, 1)
	assert.Equal(t, map[string]any{"signalId": "a", "otherId": "b", "actorId": "pm"}, (*calls)[0].body)
}

func TestHealthOutput(t *testing.T) {
	srv, _ := stubServer(t, http.StatusOK, `{"status":"ok","storage":"ok"}`)
	out, err := execute(t, srv.URL, "", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server Status: ok")
	assert.Contains(t, out, "Server URL: "+srv.URL)
}

func TestServerError(t *testing.T) {
	srv, _ := stubServer(t, http.StatusConflict, `{"message":"signal already merged"}`)
	_, err := execute(t, srv.URL, "", "merge", "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 409")
	assert.Contains(t, err.Error(), "signal already merged")
}

func TestIngest_EmptyStdin(t *testing.T) {
	srv, calls := stubServer(t, http.StatusAccepted, `{}`)
	_, err := execute(t, srv.URL, "   ", "ingest")
	require.Error(t, err)
	assert.Empty(t, *calls)
}

func TestArgsValidation(t *testing.T) {
	srv, calls := stubServer(t, http.StatusOK, `{}`)
	for _, args := range [][]string{
		{"classify"},
		{"merge", "only-one"},
		{"initiative", "set", "id"},
		{"health", "extra"},
	} {
		_, err := execute(t, srv.URL, "", args...)
		assert.Error(t, err, args)
	}
	assert.Empty(t, *calls)
}
