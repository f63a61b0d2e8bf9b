package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/nakatsu/shirabe/internal/bus"
	"github.com/nakatsu/shirabe/internal/config"
	"github.com/nakatsu/shirabe/internal/history"
	"github.com/nakatsu/shirabe/internal/models"
	"github.com/nakatsu/shirabe/internal/session"
	"github.com/nakatsu/shirabe/internal/store"
)

type stubBackend struct {
	response string
	err      error
}

func (s *stubBackend) Analyze(_ context.Context, _ *models.AnalyzeRequest) (string, error) {
	return s.response, s.err
}

func (s *stubBackend) Guidelines(_ context.Context, _ *models.GuidelineRequest) (string, error) {
	return s.response, s.err
}

func newTestServer(t *testing.T, backend *stubBackend, opts ...ServerOption) (*Server, http.Handler) {
	t.Helper()
	b := bus.New()
	sess := session.New(store.New(), b, backend)
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	srv := NewServer(sess, b, cfg, zap.NewNop(), opts...)
	return srv, srv.router()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	_, h := newTestServer(t, &stubBackend{})
	w := doJSON(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestFileLifecycle(t *testing.T) {
	_, h := newTestServer(t, &stubBackend{})

	w := doJSON(t, h, http.MethodPost, "/api/v1/files", map[string]any{
		"paths": []string{"/docs/a.pdf", "/docs/b.pdf", "/docs/a.pdf"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d: %s", w.Code, w.Body.String())
	}
	var addResp struct {
		Added int `json:"added"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &addResp); err != nil {
		t.Fatal(err)
	}
	if addResp.Added != 2 {
		t.Errorf("added = %d, want 2 (duplicate dropped)", addResp.Added)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/files", nil)
	var listResp struct {
		Files []*models.FileRecord `json:"files"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatal(err)
	}
	if len(listResp.Files) != 2 || listResp.Files[0].Name != "a.pdf" {
		t.Errorf("files = %+v", listResp.Files)
	}

	if w := doJSON(t, h, http.MethodPost, "/api/v1/files/0/check", map[string]bool{"checked": true}); w.Code != http.StatusOK {
		t.Errorf("check status = %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/api/v1/files/9/check", map[string]bool{"checked": true}); w.Code != http.StatusNotFound {
		t.Errorf("out-of-range check status = %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodDelete, "/api/v1/files/1", nil); w.Code != http.StatusOK {
		t.Errorf("remove status = %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodDelete, "/api/v1/files", nil); w.Code != http.StatusOK {
		t.Errorf("clear status = %d", w.Code)
	}
	w = doJSON(t, h, http.MethodGet, "/api/v1/files", nil)
	listResp.Files = nil
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatal(err)
	}
	if len(listResp.Files) != 0 {
		t.Errorf("files after clear = %+v", listResp.Files)
	}
}

func TestHandleClearFiles_InvalidatesResult(t *testing.T) {
	backend := &stubBackend{response: "## Guidelines\n\n- stale after clear\n"}
	srv, h := newTestServer(t, backend)
	srv.session.AddFile("/docs/a.pdf")
	srv.session.Store().SetChecked(0, true)
	rec := srv.session.Store().FindByPath("/docs/a.pdf")
	srv.session.Store().Update(func() {
		rec.Result = "✓ fine"
	})
	if w := doJSON(t, h, http.MethodPost, "/api/v1/guidelines", nil); w.Code != http.StatusOK {
		t.Fatalf("guidelines status = %d: %s", w.Code, w.Body.String())
	}

	if w := doJSON(t, h, http.MethodDelete, "/api/v1/files", nil); w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}
	w := doJSON(t, h, http.MethodGet, "/api/v1/result", nil)
	var resp struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result != "" {
		t.Errorf("result view survived clear: %q", resp.Result)
	}
}

func TestHandleUIState(t *testing.T) {
	srv, h := newTestServer(t, &stubBackend{})

	w := doJSON(t, h, http.MethodGet, "/api/v1/ui-state", nil)
	var state struct {
		AnalyzeDisabled   bool `json:"analyze_disabled"`
		SelectAllDisabled bool `json:"select_all_disabled"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatal(err)
	}
	if !state.AnalyzeDisabled || !state.SelectAllDisabled {
		t.Errorf("empty session should disable everything: %+v", state)
	}

	srv.session.AddFile("/docs/a.pdf")
	srv.session.Store().SetChecked(0, true)
	w = doJSON(t, h, http.MethodGet, "/api/v1/ui-state", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatal(err)
	}
	if state.AnalyzeDisabled {
		t.Error("analyze should be enabled with a checked file")
	}
}

func TestHandleAnalyze(t *testing.T) {
	backend := &stubBackend{response: "\n## 📄 a.pdf\n---\nlooks fine\n\n"}
	srv, h := newTestServer(t, backend)
	srv.session.AddFile("/docs/a.pdf")
	srv.session.Store().SetChecked(0, true)

	w := doJSON(t, h, http.MethodPost, "/api/v1/analyze", map[string]string{"mode": "individual"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Files []*models.FileRecord `json:"files"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Files) != 1 || resp.Files[0].Result != "looks fine" {
		t.Errorf("files = %+v", resp.Files)
	}
}

func TestHandleAnalyze_Guards(t *testing.T) {
	srv, h := newTestServer(t, &stubBackend{response: "ok"})

	// Nothing checked.
	w := doJSON(t, h, http.MethodPost, "/api/v1/analyze", map[string]string{"mode": "individual"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("no-selection status = %d", w.Code)
	}

	srv.session.AddFile("/docs/a.pdf")
	w = doJSON(t, h, http.MethodPost, "/api/v1/analyze", map[string]string{"mode": "bogus"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad-mode status = %d", w.Code)
	}
}

func TestHandleAnalyze_BackendFailureMarksRecords(t *testing.T) {
	backend := &stubBackend{err: fmt.Errorf("timeout")}
	srv, h := newTestServer(t, backend)
	srv.session.AddFile("/docs/a.pdf")
	srv.session.Store().SetChecked(0, true)

	w := doJSON(t, h, http.MethodPost, "/api/v1/analyze", map[string]string{"mode": "individual"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d", w.Code)
	}
	rec := srv.session.Store().FindByPath("/docs/a.pdf")
	if !rec.ResultIsError || rec.Result != "timeout" {
		t.Errorf("record = %+v", rec)
	}
}

func TestHandleGuidelines_NoAnalyzedSelection(t *testing.T) {
	srv, h := newTestServer(t, &stubBackend{response: "doc"})
	srv.session.AddFile("/docs/a.pdf")
	srv.session.Store().SetChecked(0, true)

	w := doJSON(t, h, http.MethodPost, "/api/v1/guidelines", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleInstruction(t *testing.T) {
	srv, h := newTestServer(t, &stubBackend{})
	w := doJSON(t, h, http.MethodPost, "/api/v1/instruction", map[string]string{"instruction": "check totals"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if srv.session.Instruction() != "check totals" {
		t.Errorf("instruction = %q", srv.session.Instruction())
	}
}

func TestHandleHistory(t *testing.T) {
	dir := t.TempDir()
	hist, err := history.NewStore(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer hist.Close()
	if err := hist.Save(context.Background(), &models.HistoryEntry{
		FileName: "a.pdf", FilePath: "/docs/a.pdf", Folder: "/docs",
		AnalyzedAt: "2026-08-01 10:00:00", Summary: "ok",
	}); err != nil {
		t.Fatal(err)
	}

	_, h := newTestServer(t, &stubBackend{}, WithHistoryStore(hist))
	w := doJSON(t, h, http.MethodGet, "/api/v1/history?folder=/docs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Entries []*models.HistoryEntry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].FileName != "a.pdf" {
		t.Errorf("entries = %+v", resp.Entries)
	}
}

func TestHandleHistory_NotEnabled(t *testing.T) {
	_, h := newTestServer(t, &stubBackend{})
	w := doJSON(t, h, http.MethodGet, "/api/v1/history", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleWatchDirectories_NotEnabled(t *testing.T) {
	_, h := newTestServer(t, &stubBackend{})
	w := doJSON(t, h, http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d", w.Code)
	}
}
