package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCounters(t *testing.T) {
	before := testutil.ToFloat64(assessmentsSubmitted.WithLabelValues("gold"))
	RecordAssessment("gold")
	if got := testutil.ToFloat64(assessmentsSubmitted.WithLabelValues("gold")); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}

	RecordRejection("issue", "")
	if got := testutil.ToFloat64(operationsRejected.WithLabelValues("issue", "unknown")); got < 1 {
		t.Fatalf("expected unknown code to be recorded")
	}

	RecordCertificateTransition(TransitionRevoked)
	if got := testutil.ToFloat64(certificateTransitions.WithLabelValues(TransitionRevoked)); got < 1 {
		t.Fatalf("expected revoked transition to be recorded")
	}
}

func TestSetCertificateStates(t *testing.T) {
	SetCertificateStates(3, 2, 1)
	cases := map[string]float64{"active": 3, "revoked": 2, "expired": 1}
	for state, want := range cases {
		if got := testutil.ToFloat64(certificateStates.WithLabelValues(state)); got != want {
			t.Fatalf("%s: expected %v, got %v", state, want, got)
		}
	}
}

func TestInstrumentHandler(t *testing.T) {
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz/deep", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/healthz", "418")); got != 1 {
		t.Fatalf("expected one request recorded, got %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	RecordAssessment("platinum")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "sustainability_assessments_submitted_total") {
		t.Fatalf("metrics output missing assessment counter")
	}
}

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":             "/",
		"/":            "/",
		"/healthz":     "/healthz",
		"/metrics/foo": "/metrics",
	}
	for in, want := range cases {
		if got := canonicalPath(in); got != want {
			t.Fatalf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}
