package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glancesync/internal/config"
	"glancesync/pkg/model"
	"glancesync/pkg/traffic"
)

// fakeGlance 模拟后端的 REST 与推送接口
type fakeGlance struct {
	mu      sync.Mutex
	frames  chan string
	resumed map[string]string
	cleared bool
	broken  bool
	srv     *httptest.Server
}

func newFakeGlance(t *testing.T) *fakeGlance {
	t.Helper()
	g := &fakeGlance{frames: make(chan string, 16), resumed: make(map[string]string)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/config", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(model.BackendConfig{ProxyAddr: ":8080", DefaultPageSize: 2})
	})
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(model.Status{Version: "0.9.1", ProxyAddr: ":8080"})
	})
	mux.HandleFunc("GET /api/traffic", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		broken := g.broken
		g.mu.Unlock()
		if broken {
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(model.TrafficPage{
			Entries: []traffic.Exchange{
				{ID: "2", Method: "GET", URL: "https://svc/2", Status: 200},
				{ID: "1", Method: "GET", URL: "https://svc/1", Status: 200},
			},
			Total: 2,
		})
	})
	mux.HandleFunc("DELETE /api/traffic", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.cleared = true
		g.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/intercept/response/continue/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.resumed[r.PathValue("id")] = string(body)
		g.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/ws/traffic", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		for {
			select {
			case f := <-g.frames:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})

	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func entryIDs(entries []traffic.Exchange) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func newTestService(t *testing.T, g *fakeGlance) *Service {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Backend.URL = g.srv.URL
	cfg.Backend.Timeout = 2 * time.Second
	cfg.Sqlite.Dsn = filepath.Join(t.TempDir(), "rec.sqlite3")

	svc, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestServiceEndToEnd(t *testing.T) {
	g := newFakeGlance(t)
	svc := newTestService(t, g)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx))
	assert.ErrorIs(t, svc.Start(ctx), ErrAlreadyStarted)

	assert.Equal(t, model.PageWindow{Page: 1, PageSize: 2, Total: 2}, svc.Window())
	assert.Equal(t, []string{"2", "1"}, entryIDs(svc.Entries()))

	recID, err := svc.StartRecording("svc/3")
	require.NoError(t, err)

	g.frames <- `{"id":"3","method":"POST","url":"https://svc/3","status":201,"request_headers":{"Content-Type":["application/json"]},"request_body":"{}"}`
	require.Eventually(t, func() bool {
		return svc.Window().Total == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"3", "2"}, entryIDs(svc.Entries()))

	cmd, err := svc.Curl("3")
	require.NoError(t, err)
	assert.Contains(t, cmd, "curl -X POST 'https://svc/3'")

	g.frames <- `{"type":"intercepted","intercept_type":"response","id":"x7","entry":{"id":"x7","method":"GET","url":"https://svc/x7","status":200,"response_body":"hi"}}`
	require.Eventually(t, func() bool {
		_, ok := svc.ActiveIntercept()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.BeginEdit("x7"))
	draft, err := svc.DraftResponse("x7")
	require.NoError(t, err)
	draft.Body = "edited"
	require.NoError(t, svc.ResumeResponse(ctx, "x7", draft))

	g.mu.Lock()
	body := g.resumed["x7"]
	g.mu.Unlock()
	assert.JSONEq(t, `{"status":200,"headers":{},"body":"edited"}`, body)
	assert.Empty(t, svc.Pending())

	recorded := svc.StopRecording()
	assert.Equal(t, []string{"3"}, entryIDs(recorded))
	stored, err := svc.LoadRecording(ctx, recID)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, entryIDs(stored))

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.9.1", st.Version)

	require.NoError(t, svc.Clear(ctx))
	assert.Empty(t, svc.Entries())
	assert.Equal(t, 0, svc.Window().Total)

	stats := svc.StreamStats()
	assert.EqualValues(t, 2, stats.Received)

	require.NoError(t, svc.Close())
	assert.ErrorIs(t, svc.Start(ctx), ErrClosed)
}

func TestServiceFirstPageFailureKeepsStream(t *testing.T) {
	g := newFakeGlance(t)
	g.mu.Lock()
	g.broken = true
	g.mu.Unlock()
	svc := newTestService(t, g)
	ctx := context.Background()

	err := svc.Start(ctx)
	require.ErrorIs(t, err, ErrFirstPage)
	assert.Contains(t, err.Error(), "history unavailable")
	assert.ErrorIs(t, svc.Start(ctx), ErrAlreadyStarted)

	// 推送仍在工作
	g.frames <- `{"id":"9","method":"GET","url":"https://svc/9","status":200}`
	require.Eventually(t, func() bool {
		return svc.StreamStats().Received == 1
	}, 2*time.Second, 10*time.Millisecond)

	g.mu.Lock()
	g.broken = false
	g.mu.Unlock()
	require.NoError(t, svc.LoadPage(ctx, 1, 0))
	assert.Equal(t, []string{"2", "1"}, entryIDs(svc.Entries()))
}

func TestServiceStartFailsWithoutStream(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	cfg := config.NewConfig()
	cfg.Backend.URL = srv.URL
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	err = svc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect stream")

	_, err = svc.Exchange("missing")
	assert.ErrorIs(t, err, ErrUnknownID)
}
