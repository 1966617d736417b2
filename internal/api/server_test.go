package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/foxzi/blastry/internal/agent"
	"github.com/foxzi/blastry/internal/campaign"
	"github.com/foxzi/blastry/internal/config"
	"github.com/foxzi/blastry/internal/dispatch"
	"github.com/foxzi/blastry/internal/history"
	"github.com/foxzi/blastry/internal/phone"
	"github.com/foxzi/blastry/internal/recipient"
	"github.com/foxzi/blastry/internal/store"
)

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(filepath.Join(t.TempDir(), "store.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	projects := campaign.NewStore(st, "u1", logger)
	if err := projects.Start(ctx); err != nil {
		t.Fatalf("start projects: %v", err)
	}
	t.Cleanup(projects.Close)

	active, ok := projects.Active()
	if !ok {
		t.Fatal("no active project after start")
	}

	recipients, err := recipient.Open(ctx, st, "u1", active.EventID, phone.Default, language.Hebrew, logger)
	if err != nil {
		t.Fatalf("open recipients: %v", err)
	}
	t.Cleanup(recipients.Close)

	jobs, err := history.Open(ctx, st, "u1", active.EventID, logger)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(jobs.Close)

	agents, err := agent.Open(ctx, st, agent.Defaults{DailyLimit: 50, SendDelayMs: 3000}, logger, nil)
	if err != nil {
		t.Fatalf("open agents: %v", err)
	}
	t.Cleanup(agents.Close)

	deps := Deps{
		Store:      st,
		Projects:   projects,
		Agents:     agents,
		Dispatcher: dispatch.New(st, projects, "u1", logger, nil),
		Recipients: func() *recipient.Registry { return recipients },
		History:    func() *history.Observer { return jobs },
		Version:    "test",
	}
	cfg := &config.APIConfig{ListenAddr: ":0", APIKey: apiKey}
	return NewServer(deps, cfg, logger)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthNoAuth(t *testing.T) {
	s := newTestServer(t, "secret")

	rec := doJSON(t, s, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var resp HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "ok" || resp.Projects != 1 {
		t.Fatalf("health = %+v", resp)
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, "secret")

	rec := doJSON(t, s, "GET", "/api/v1/projects", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer secret")
	out := httptest.NewRecorder()
	s.router.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("bearer auth status = %d", out.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/projects", nil)
	req.Header.Set("X-API-Key", "secret")
	out = httptest.NewRecorder()
	s.router.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("x-api-key auth status = %d", out.Code)
	}
}

func TestProjectLifecycle(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, "POST", "/api/v1/projects", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	var created campaign.Project
	decode(t, rec, &created)
	if created.EventID != created.ID {
		t.Fatalf("created project eventId = %q, id = %q", created.EventID, created.ID)
	}

	rec = doJSON(t, s, "PATCH", "/api/v1/projects/"+created.ID, map[string]any{"messageText": "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body)
	}
	var patched campaign.Project
	decode(t, rec, &patched)
	if patched.MessageText != "hi" {
		t.Fatalf("patched message = %q", patched.MessageText)
	}

	rec = doJSON(t, s, "POST", "/api/v1/projects/"+created.ID+"/activate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d", rec.Code)
	}

	var list ProjectsResponse
	rec = doJSON(t, s, "GET", "/api/v1/projects", nil)
	decode(t, rec, &list)
	if len(list.Projects) != 2 || list.ActiveID != created.ID {
		t.Fatalf("list = %+v", list)
	}

	rec = doJSON(t, s, "DELETE", "/api/v1/projects/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body)
	}
}

func TestDeleteLastProjectRejected(t *testing.T) {
	s := newTestServer(t, "")

	var list ProjectsResponse
	decode(t, doJSON(t, s, "GET", "/api/v1/projects", nil), &list)
	if len(list.Projects) != 1 {
		t.Fatalf("expected the seeded project, got %d", len(list.Projects))
	}

	rec := doJSON(t, s, "DELETE", "/api/v1/projects/"+list.Projects[0].ID, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("delete last project status = %d, want 422", rec.Code)
	}
}

func TestScheduleValidation(t *testing.T) {
	s := newTestServer(t, "")

	var list ProjectsResponse
	decode(t, doJSON(t, s, "GET", "/api/v1/projects", nil), &list)
	id := list.Projects[0].ID

	rec := doJSON(t, s, "POST", "/api/v1/projects/"+id+"/schedule", ScheduleRequest{
		Mode:        campaign.ModeSchedule,
		ScheduleISO: "2001-01-01T00:00:00Z",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("past schedule status = %d, want 400", rec.Code)
	}
}

func TestRecipientEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, "POST", "/api/v1/recipients", AddRecipientRequest{Name: "Avi", Phone: "0521234567"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d: %s", rec.Code, rec.Body)
	}
	var added recipient.Recipient
	decode(t, rec, &added)
	if added.Phone != "972521234567" {
		t.Fatalf("normalized phone = %q", added.Phone)
	}

	csv := "name,phone\nBeni,0529999990\nAvi,0521234567\n"
	req := httptest.NewRequest("POST", "/api/v1/recipients/import", strings.NewReader(csv))
	out := httptest.NewRecorder()
	s.router.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", out.Code, out.Body)
	}
	var imp ImportResponse
	decode(t, out, &imp)
	if imp.Added != 1 || imp.Skipped != 1 {
		t.Fatalf("import = %+v, want 1 added 1 duplicate skipped", imp)
	}

	rec = doJSON(t, s, "GET", "/api/v1/recipients", nil)
	var listResp struct {
		Recipients []recipient.Recipient `json:"recipients"`
	}
	decode(t, rec, &listResp)
	if len(listResp.Recipients) != 2 {
		t.Fatalf("got %d recipients, want 2", len(listResp.Recipients))
	}

	rec = doJSON(t, s, "GET", "/api/v1/recipients/template.csv", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "name,phone") {
		t.Fatalf("template export = %d %q", rec.Code, rec.Body.String())
	}
}

func TestSendEndpoint(t *testing.T) {
	s := newTestServer(t, "")

	// Empty message rejected.
	rec := doJSON(t, s, "POST", "/api/v1/send", SendRequest{Mode: campaign.ModeNow})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank send status = %d, want 400", rec.Code)
	}

	var list ProjectsResponse
	decode(t, doJSON(t, s, "GET", "/api/v1/projects", nil), &list)
	id := list.Projects[0].ID
	doJSON(t, s, "PATCH", "/api/v1/projects/"+id, map[string]any{"messageText": "hello"})
	doJSON(t, s, "POST", "/api/v1/recipients", AddRecipientRequest{Name: "Avi", Phone: "0521234567"})

	rec = doJSON(t, s, "POST", "/api/v1/send", SendRequest{Mode: campaign.ModeNow})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("send status = %d: %s", rec.Code, rec.Body)
	}
	var res dispatch.Result
	decode(t, rec, &res)
	if res.Count != 1 || !strings.HasPrefix(res.BatchID, "batch_") {
		t.Fatalf("send result = %+v", res)
	}
}

func TestAgentEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, "POST", "/api/v1/agents", CreateAgentRequest{})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create agent status = %d: %s", rec.Code, rec.Body)
	}
	var created agent.Agent
	decode(t, rec, &created)
	if created.ID != "server1" {
		t.Fatalf("agent id = %q", created.ID)
	}

	rec = doJSON(t, s, "POST", "/api/v1/agents", CreateAgentRequest{ID: "server1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate agent status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, s, "GET", "/api/v1/agents", nil)
	var listResp struct {
		Agents []AgentView `json:"agents"`
	}
	decode(t, rec, &listResp)
	if len(listResp.Agents) != 1 || listResp.Agents[0].Phase != agent.PhaseWaitingQR {
		t.Fatalf("agents = %+v", listResp.Agents)
	}

	// No QR reported yet.
	rec = doJSON(t, s, "GET", "/api/v1/agents/server1/qr.png", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("qr without payload status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, s, "POST", "/api/v1/agents/server1/delay", SetDelayRequest{SendDelayMs: 10000})
	if rec.Code != http.StatusOK {
		t.Fatalf("delay status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, "POST", "/api/v1/agents/server1/toggle", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", rec.Code)
	}

	rec = doJSON(t, s, "DELETE", "/api/v1/agents/server1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete agent status = %d", rec.Code)
	}

	rec = doJSON(t, s, "GET", "/api/v1/agents/missing/qr.png", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing agent qr status = %d", rec.Code)
	}
}

func TestAgentQRRendersPNG(t *testing.T) {
	s := newTestServer(t, "")

	doJSON(t, s, "POST", "/api/v1/agents", CreateAgentRequest{ID: "qrbox"})
	if err := s.deps.Store.Patch(context.Background(), store.AgentPath("qrbox"), map[string]any{"qr": "pairing-payload"}); err != nil {
		t.Fatalf("seed qr: %v", err)
	}
	// Wait for the registry to observe the patched record.
	deadlineHit := true
	for i := 0; i < 200; i++ {
		if a, err := s.deps.Agents.Get("qrbox"); err == nil && a.QRPayload() != "" {
			deadlineHit = false
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if deadlineHit {
		t.Fatal("registry never observed the QR payload")
	}

	rec := doJSON(t, s, "GET", "/api/v1/agents/qrbox/qr.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("qr status = %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	png := rec.Body.Bytes()
	if len(png) < 8 || png[1] != 'P' || png[2] != 'N' || png[3] != 'G' {
		t.Fatal("response is not a PNG")
	}
}

func TestThemeEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	rec := doJSON(t, s, "GET", "/api/v1/theme", nil)
	var theme map[string]string
	decode(t, rec, &theme)
	if theme["themeMode"] != "light" {
		t.Fatalf("default theme = %q", theme["themeMode"])
	}

	rec = doJSON(t, s, "PUT", "/api/v1/theme", map[string]string{"themeMode": "dark"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set theme status = %d", rec.Code)
	}

	rec = doJSON(t, s, "PUT", "/api/v1/theme", map[string]string{"themeMode": "sepia"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid theme status = %d", rec.Code)
	}

	decode(t, doJSON(t, s, "GET", "/api/v1/theme", nil), &theme)
	if theme["themeMode"] != "dark" {
		t.Fatalf("persisted theme = %q", theme["themeMode"])
	}
}
