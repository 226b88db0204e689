package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418"))

	resp, err := http.Get(ts.URL + "/test")
	if err != nil {
		t.Fatal(err)
	}
	if errInner := resp.Body.Close(); errInner != nil {
		t.Log(errInner)
	}

	resp, err = http.Get(ts.URL + "/teapot")
	if err != nil {
		t.Fatal(err)
	}
	if errInner := resp.Body.Close(); errInner != nil {
		t.Log(errInner)
	}

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418")); val != before+1 {
		t.Errorf("Expected httpRequestsTotal for GET /teapot to be %v, got %f", before+1, val)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val <= 0 {
		t.Errorf("Expected httpRequestDurationSeconds to be observed, got %d", val)
	}
}
