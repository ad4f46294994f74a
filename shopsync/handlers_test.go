package shopsync_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"bitbucket.org/mmdatafocus/stocklink_backend/shopsync"
	"github.com/gin-gonic/gin"
)

func newReportRouter(runner *shopsync.Runner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/sync/stores/:store/report", shopsync.ReportHandler(runner))
	return r
}

func TestReportHandlerRejectsAllSelector(t *testing.T) {
	// No registered stores: the all selector resolves to an empty target
	// list, which must never reach the plan builder.
	runner := newTestRunner(&fakeStorefront{}, &fakeErp{}, newFakeLedger(), &fakeRunLog{})
	router := newReportRouter(runner)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sync/stores/all/report", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for the all selector, got %d", w.Code)
	}
}

func TestReportHandlerEmptyResolveReturnsNotFound(t *testing.T) {
	runner := newTestRunner(&fakeStorefront{}, &fakeErp{}, newFakeLedger(), &fakeRunLog{}, testStoreConfig())
	runner.Resolve = func(ctx context.Context, store string) ([]models.StoreConfig, error) {
		return nil, nil
	}
	router := newReportRouter(runner)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sync/stores/acme/report", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an empty target list, got %d", w.Code)
	}
}

func TestTriggerHandlerReportsFieldValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/sync/trigger", shopsync.TriggerHandler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sync/trigger", strings.NewReader(`{"sync_type":"refunds"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid trigger body, got %d", w.Code)
	}

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("could not decode error response: %v", err)
	}
	if body.Fields["Store"] != "required" {
		t.Fatalf("expected Store=required in field errors, got %v", body.Fields)
	}
	if body.Fields["SyncType"] != "oneof" {
		t.Fatalf("expected SyncType=oneof in field errors, got %v", body.Fields)
	}
}
