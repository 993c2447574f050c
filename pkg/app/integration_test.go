package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/threadview/threadview/internal/stream"
	"github.com/threadview/threadview/pkg/auth/static"
	"github.com/threadview/threadview/pkg/config"
	"github.com/threadview/threadview/pkg/domain"
	"github.com/threadview/threadview/pkg/persistence"
	"github.com/threadview/threadview/pkg/persistence/memory"
)

func newTestApp(t *testing.T) *Application {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.LoadConfigOptional("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	kv, err := memory.NewPlugin(persistence.PluginConfig{})
	if err != nil {
		t.Fatalf("memory plugin: %v", err)
	}

	agentValidator, err := static.NewValidatorFromJSON(json.RawMessage(`{"token":"agent-token","subject":"agent"}`))
	if err != nil {
		t.Fatalf("agent validator: %v", err)
	}
	clientValidator, err := static.NewValidatorFromJSON(json.RawMessage(`{"token":"client-token","subject":"client","raw":{"role":"ADMIN"}}`))
	if err != nil {
		t.Fatalf("client validator: %v", err)
	}

	application, err := NewApplication(cfg,
		WithPersistence(kv),
		WithAgentValidator(agentValidator),
		WithClientValidator(clientValidator),
	)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	SetupMappings(application)
	return application
}

func doJSON(t *testing.T, app *Application, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	app.Engine.ServeHTTP(w, req)
	return w
}

func ingest(t *testing.T, app *Application, threadID string, typ domain.EventType, payload any) {
	t.Helper()
	ev := domain.NewEvent(typ, threadID, payload)
	w := doJSON(t, app, http.MethodPost, "/v1/threads/"+threadID+"/events", "agent-token", ev)
	if w.Code != http.StatusAccepted {
		t.Fatalf("ingest %s: expected 202, got %d: %s", typ, w.Code, w.Body.String())
	}
}

func TestIngestAndGetTasks(t *testing.T) {
	app := newTestApp(t)

	ingest(t, app, "th-1", domain.EventArtifactStart, domain.ArtifactStartPayload{
		TaskID: "task-1", ArtifactID: "art-1", Type: domain.ArtifactCode, Language: "go",
	})
	ingest(t, app, "th-1", domain.EventArtifactChunk, domain.ArtifactChunkPayload{
		ArtifactID: "art-1", Delta: "package main",
	})
	ingest(t, app, "th-1", domain.EventArtifactCompleted, domain.ArtifactCompletedPayload{
		ArtifactID: "art-1", FullContent: "package main\n",
	})

	w := doJSON(t, app, http.MethodGet, "/v1/threads/th-1/tasks", "client-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tasks: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tasks) != 1 || len(resp.Tasks[0].Artifacts) != 1 {
		t.Fatalf("unexpected tasks: %+v", resp.Tasks)
	}
	if resp.Tasks[0].Artifacts[0].Content != "package main\n" {
		t.Errorf("unexpected artifact content: %q", resp.Tasks[0].Artifacts[0].Content)
	}
}

func TestAuthRequired(t *testing.T) {
	app := newTestApp(t)

	ev := domain.NewEvent(domain.EventThreadStatus, "th-1", domain.ThreadStatusPayload{Status: domain.ThreadRunning})
	w := doJSON(t, app, http.MethodPost, "/v1/threads/th-1/events", "", ev)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	// Client token is not the agent token.
	w = doJSON(t, app, http.MethodPost, "/v1/threads/th-1/events", "client-token", ev)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
}

func TestResumeFlow(t *testing.T) {
	app := newTestApp(t)

	ingest(t, app, "th-1", domain.EventPlanProposed, domain.PlanProposedPayload{
		Plan: domain.Plan{{ID: "task-1", Title: "draft answer"}},
	})

	w := doJSON(t, app, http.MethodPost, "/v1/threads/th-1/resume", "client-token", map[string]any{
		"approved": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Second resume has nothing pending.
	w = doJSON(t, app, http.MethodPost, "/v1/threads/th-1/resume", "client-token", map[string]any{
		"approved": true,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for double resume, got %d", w.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	app := newTestApp(t)

	ingest(t, app, "th-1", domain.EventArtifactGenerated, domain.ArtifactGeneratedPayload{
		TaskID: "task-1",
		Artifact: domain.Artifact{
			ID: "art-1", Type: domain.ArtifactMarkdown, Content: "# Hello",
		},
	})

	w := doJSON(t, app, http.MethodGet, "/v1/threads/th-1/artifacts/art-1/preview", "client-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preview: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("unexpected content type: %s", ct)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("<h1")) {
		t.Errorf("expected rendered markdown, got: %s", w.Body.String())
	}

	w = doJSON(t, app, http.MethodGet, "/v1/threads/th-1/artifacts/missing/preview", "client-token", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown artifact, got %d", w.Code)
	}
}

func TestClearThread(t *testing.T) {
	app := newTestApp(t)

	ingest(t, app, "th-1", domain.EventThreadStatus, domain.ThreadStatusPayload{Status: domain.ThreadCompleted})

	w := doJSON(t, app, http.MethodDelete, "/v1/threads/th-1", "client-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, app, http.MethodGet, "/v1/threads/th-1/tasks", "client-token", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after clear, got %d", w.Code)
	}
}

func TestAdminThreads(t *testing.T) {
	app := newTestApp(t)

	ingest(t, app, "th-1", domain.EventThreadStatus, domain.ThreadStatusPayload{Status: domain.ThreadRunning})
	ingest(t, app, "th-2", domain.EventThreadStatus, domain.ThreadStatusPayload{Status: domain.ThreadRunning})

	w := doJSON(t, app, http.MethodGet, "/v1/admin/threads", "client-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin threads: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("expected 2 threads, got %d", resp.Count)
	}
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)

	w := doJSON(t, app, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", w.Code)
	}
}

func TestStreamDeliversSyncAndDeltas(t *testing.T) {
	app := newTestApp(t)

	ingest(t, app, "th-1", domain.EventArtifactStart, domain.ArtifactStartPayload{
		TaskID: "task-1", ArtifactID: "art-1", Type: domain.ArtifactCode,
	})

	srv := httptest.NewServer(app.Engine)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/threads/th-1/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer client-token")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	r := stream.NewReader(resp.Body)
	first, err := r.Next()
	if err != nil {
		t.Fatalf("read sync frame: %v", err)
	}
	if first.Type != domain.EventSync {
		t.Fatalf("expected sync frame first, got %s", first.Type)
	}
	p, err := first.Sync()
	if err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if len(p.Tasks) != 1 {
		t.Fatalf("expected 1 task in sync frame, got %d", len(p.Tasks))
	}

	ingest(t, app, "th-1", domain.EventArtifactChunk, domain.ArtifactChunkPayload{
		ArtifactID: "art-1", Delta: "hello",
	})

	next, err := r.Next()
	if err != nil {
		t.Fatalf("read delta: %v", err)
	}
	if next.Type != domain.EventArtifactChunk {
		t.Fatalf("expected artifact-chunk, got %s", next.Type)
	}
}
