package exporters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smazurov/encodenode/internal/metrics"
)

func TestHTTPHandler(t *testing.T) {
	handler := HTTPHandler()

	metrics.SetJobProgress("http-test-job", 5, 10, 1, 100, 45)
	defer metrics.DeleteJobMetrics("http-test-job")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	if !strings.Contains(body, `encodenode_job_progress_percent{job_id="http-test-job"} 10`) {
		t.Error("expected job progress gauge in response")
	}
}
