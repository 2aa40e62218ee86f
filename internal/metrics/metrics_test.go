package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCheck(t *testing.T) {
	before := testutil.ToFloat64(checksTotal.WithLabelValues("unchanged"))
	ObserveCheck("unchanged")
	ObserveCheck("unchanged")
	if got := testutil.ToFloat64(checksTotal.WithLabelValues("unchanged")) - before; got != 2 {
		t.Fatalf("expected 2 unchanged checks, got %f", got)
	}
}

func TestObserveNotification(t *testing.T) {
	okBefore := testutil.ToFloat64(notificationsTotal.WithLabelValues("chat", "success"))
	failBefore := testutil.ToFloat64(notificationsTotal.WithLabelValues("chat", "failure"))

	ObserveNotification("chat", true)
	ObserveNotification("chat", false)
	ObserveNotification("chat", false)

	if got := testutil.ToFloat64(notificationsTotal.WithLabelValues("chat", "success")) - okBefore; got != 1 {
		t.Fatalf("expected 1 success, got %f", got)
	}
	if got := testutil.ToFloat64(notificationsTotal.WithLabelValues("chat", "failure")) - failBefore; got != 2 {
		t.Fatalf("expected 2 failures, got %f", got)
	}
}

func TestObserveStageAndChange(t *testing.T) {
	ObserveStage("fetch", 150*time.Millisecond)
	if n := testutil.CollectAndCount(stageDurationSeconds); n <= 0 {
		t.Fatalf("expected stage histogram to be observed, got %d series", n)
	}

	at := time.Unix(1_750_000_000, 0)
	ObserveChange(at)
	if got := testutil.ToFloat64(lastChangeTimestamp); got != float64(at.Unix()) {
		t.Fatalf("expected last change %d, got %f", at.Unix(), got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	ObserveCheck("updated")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); !containsAll(body, "watcher_checks_total", `outcome="updated"`) {
		t.Fatalf("expected check counter in exposition, got %q", body)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
