package measurement

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mdh-device-export/internal/mdh"
)

// pointsAPI is a fake device data points endpoint. Handler decides the response per request.
type pointsAPI struct {
	mu      sync.Mutex
	paths   []string
	queries []url.Values
	handler func(w http.ResponseWriter, q url.Values)
}

func (a *pointsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.paths = append(a.paths, r.URL.Path)
	a.queries = append(a.queries, r.URL.Query())
	a.mu.Unlock()
	a.handler(w, r.URL.Query())
}

func (a *pointsAPI) requests() []url.Values {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]url.Values(nil), a.queries...)
}

func (a *pointsAPI) path(i int) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paths[i]
}

func writePoints(w http.ResponseWriter, q url.Values, n int) {
	points := make([]map[string]any, n)
	for i := range points {
		points[i] = map[string]any{
			"id":                    q.Get("participantIdentifier") + "-" + q.Get("type"),
			"value":                 float64(i),
			"type":                  q.Get("type"),
			"observationDate":       "2024-01-02T08:00:00Z",
			"participantIdentifier": q.Get("participantIdentifier"),
		}
	}
	json.NewEncoder(w).Encode(map[string]any{"deviceDataPoints": points})
}

func newTestRetriever(t *testing.T, ns Namespace, concurrency int, handler func(w http.ResponseWriter, q url.Values)) (*Retriever, *pointsAPI) {
	t.Helper()
	api := &pointsAPI{handler: handler}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	client := mdh.NewClient(server.URL, 5*time.Second, nil)
	return NewRetriever(client, ns, concurrency, nil), api
}

func TestFetch_ObservedWindow(t *testing.T) {
	testCases := []struct {
		name       string
		spec       Spec
		wantAfter  string
		wantBefore string
	}{
		{"both bounds", Spec{StartDate: "2024-01-01", EndDate: "2024-01-31"}, "2024-01-01T00:00:00Z", "2024-01-31T23:59:59Z"},
		{"start only", Spec{StartDate: "2024-03-05"}, "2024-03-05T00:00:00Z", ""},
		{"end only", Spec{EndDate: "2024-03-05"}, "", "2024-03-05T23:59:59Z"},
		{"no bounds", Spec{}, "", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, api := newTestRetriever(t, HealthConnect, 1, func(w http.ResponseWriter, q url.Values) { writePoints(w, q, 1) })
			tc.spec.Measurements = []string{"steps"}
			if _, err := r.Fetch(context.Background(), "tok", "proj", []string{"p1"}, tc.spec); err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			reqs := api.requests()
			if len(reqs) != 1 {
				t.Fatalf("requests = %d, want 1", len(reqs))
			}
			q := reqs[0]
			if _, has := q["observedAfter"]; has != (tc.wantAfter != "") {
				t.Errorf("observedAfter present = %v, want %v", has, tc.wantAfter != "")
			}
			if _, has := q["observedBefore"]; has != (tc.wantBefore != "") {
				t.Errorf("observedBefore present = %v, want %v", has, tc.wantBefore != "")
			}
			if q.Get("observedAfter") != tc.wantAfter || q.Get("observedBefore") != tc.wantBefore {
				t.Errorf("window = (%q, %q), want (%q, %q)", q.Get("observedAfter"), q.Get("observedBefore"), tc.wantAfter, tc.wantBefore)
			}
		})
	}
}

func TestFetch_AppleHealthScenario(t *testing.T) {
	r, api := newTestRetriever(t, AppleHealth, 1, func(w http.ResponseWriter, q url.Values) { writePoints(w, q, 3) })
	spec := Spec{StartDate: "2024-01-01", EndDate: "2024-01-31", Measurements: []string{"steps", "vo2_max"}}

	res, err := r.Fetch(context.Background(), "tok", "proj", []string{"p1"}, spec)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	reqs := api.requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1 (vo2_max unsupported)", len(reqs))
	}
	want := url.Values{
		"namespace":             {"AppleHealth"},
		"type":                  {"Steps"},
		"participantIdentifier": {"p1"},
		"observedAfter":         {"2024-01-01T00:00:00Z"},
		"observedBefore":        {"2024-01-31T23:59:59Z"},
	}
	if diff := cmp.Diff(want, reqs[0]); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
	if api.path(0) != "/api/v1/administration/projects/proj/devicedatapoints/" {
		t.Errorf("path = %q, want v1 path with trailing slash", api.path(0))
	}

	if got := res.Records.Get("p1", "steps").Len(); got != 3 {
		t.Errorf("steps rows = %d, want 3", got)
	}
	if _, ok := res.Records["p1"]["vo2_max"]; ok {
		t.Error("vo2_max should be absent for AppleHealth")
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Kind != mdh.DiagUnsupported || res.Diagnostics[0].Measurement != "vo2_max" {
		t.Errorf("diagnostics = %+v, want one unsupported vo2_max", res.Diagnostics)
	}
	if res.Diagnostics[0].Namespace != "AppleHealth" {
		t.Errorf("diagnostic namespace = %q", res.Diagnostics[0].Namespace)
	}
}

func TestFetch_HealthConnectScenario(t *testing.T) {
	r, api := newTestRetriever(t, HealthConnect, 1, func(w http.ResponseWriter, q url.Values) { writePoints(w, q, 2) })
	spec := Spec{StartDate: "2024-01-01", EndDate: "2024-01-31", Measurements: []string{"steps", "vo2_max"}}

	res, err := r.Fetch(context.Background(), "tok", "proj", []string{"p1"}, spec)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	reqs := api.requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	if reqs[0].Get("type") != "steps" || reqs[1].Get("type") != "vo2-max" {
		t.Errorf("types = %q, %q; want steps, vo2-max", reqs[0].Get("type"), reqs[1].Get("type"))
	}
	if reqs[0].Get("namespace") != "HealthConnect" {
		t.Errorf("namespace = %q", reqs[0].Get("namespace"))
	}
	if api.path(0) != "/api/v2/administration/projects/proj/devicedatapoints" {
		t.Errorf("path = %q, want v2 path", api.path(0))
	}
	if res.Records.Get("p1", "vo2_max").Len() != 2 {
		t.Error("vo2_max should be recorded for HealthConnect")
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("diagnostics = %+v, want none", res.Diagnostics)
	}
}

func TestFetch_UnknownNameMakesNoRequest(t *testing.T) {
	r, api := newTestRetriever(t, HealthConnect, 1, func(w http.ResponseWriter, q url.Values) {
		t.Errorf("unexpected request for %v", q)
	})
	res, err := r.Fetch(context.Background(), "tok", "proj", []string{"p1", "p2"}, Spec{Measurements: []string{"mood", "hrv"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n := len(api.requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
	if len(res.Diagnostics) != 4 {
		t.Fatalf("diagnostics = %d, want 4", len(res.Diagnostics))
	}
	for _, d := range res.Diagnostics {
		if d.Kind != mdh.DiagUnsupported {
			t.Errorf("kind = %q, want unsupported", d.Kind)
		}
	}
	if res.Records.Count() != 0 {
		t.Errorf("records = %d, want 0", res.Records.Count())
	}
}

func TestFetch_FailureIsolatedToPair(t *testing.T) {
	r, _ := newTestRetriever(t, HealthConnect, 1, func(w http.ResponseWriter, q url.Values) {
		switch {
		case q.Get("participantIdentifier") == "p1" && q.Get("type") == "heart-rate":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("upstream exploded"))
		case q.Get("participantIdentifier") == "p2" && q.Get("type") == "steps":
			w.WriteHeader(http.StatusNotFound)
		default:
			writePoints(w, q, 1)
		}
	})
	spec := Spec{Measurements: []string{"steps", "heart_rate", "sleep"}}
	res, err := r.Fetch(context.Background(), "tok", "proj", []string{"p1", "p2"}, spec)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	present := map[string][]string{}
	for pid, byMeas := range res.Records {
		for meas := range byMeas {
			present[pid] = append(present[pid], meas)
		}
	}
	if res.Records.Get("p1", "heart_rate") != nil || res.Records.Get("p2", "steps") != nil {
		t.Errorf("failed pairs should be absent, got %v", present)
	}
	for _, pair := range [][2]string{{"p1", "steps"}, {"p1", "sleep"}, {"p2", "heart_rate"}, {"p2", "sleep"}} {
		if res.Records.Get(pair[0], pair[1]).Len() != 1 {
			t.Errorf("pair %v missing", pair)
		}
	}

	want := []mdh.Diagnostic{
		{Kind: mdh.DiagSkipped, Namespace: "HealthConnect", ParticipantID: "p1", Measurement: "heart_rate", StatusCode: 500, Message: "upstream exploded"},
		{Kind: mdh.DiagSkipped, Namespace: "HealthConnect", ParticipantID: "p2", Measurement: "steps", StatusCode: 404},
	}
	if diff := cmp.Diff(want, res.Diagnostics); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestFetch_TagsPoints(t *testing.T) {
	for _, ns := range Namespaces() {
		t.Run(ns.Name, func(t *testing.T) {
			r, _ := newTestRetriever(t, ns, 1, func(w http.ResponseWriter, q url.Values) { writePoints(w, q, 4) })
			res, err := r.Fetch(context.Background(), "tok", "proj", []string{"alice", "bob"}, Spec{Measurements: []string{"heart_rate"}})
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			for _, pid := range []string{"alice", "bob"} {
				tbl := res.Records.Get(pid, "heart_rate")
				if tbl.Len() != 4 {
					t.Fatalf("%s rows = %d, want 4", pid, tbl.Len())
				}
				for _, p := range tbl.Points {
					if p[ParticipantKey] != pid || p[MeasurementKey] != "heart_rate" {
						t.Errorf("point tags = (%v, %v), want (%s, heart_rate)", p[ParticipantKey], p[MeasurementKey], pid)
					}
					if p["participantIdentifier"] != pid {
						t.Errorf("API fields should pass through, got %v", p)
					}
				}
			}
		})
	}
}

func TestFetch_EmptyPointsNotRecorded(t *testing.T) {
	r, _ := newTestRetriever(t, HealthConnect, 1, func(w http.ResponseWriter, q url.Values) {
		w.Write([]byte(`{"deviceDataPoints":[]}`))
	})
	res, err := r.Fetch(context.Background(), "tok", "proj", []string{"p1"}, Spec{Measurements: []string{"steps"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, ok := res.Records["p1"]["steps"]; ok {
		t.Error("empty result should not be recorded")
	}
	if _, ok := res.Records["p1"]; !ok {
		t.Error("requested participant should have an entry")
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Kind != mdh.DiagEmpty {
		t.Errorf("diagnostics = %+v, want one empty", res.Diagnostics)
	}
}

func TestFetch_MalformedBodyIsFailedDiagnostic(t *testing.T) {
	r, _ := newTestRetriever(t, HealthConnect, 1, func(w http.ResponseWriter, q url.Values) {
		w.Write([]byte(`not json`))
	})
	res, err := r.Fetch(context.Background(), "tok", "proj", []string{"p1"}, Spec{Measurements: []string{"steps"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Kind != mdh.DiagFailed {
		t.Errorf("diagnostics = %+v, want one failed", res.Diagnostics)
	}
}

func TestFetch_ConcurrencyDoesNotChangeOutput(t *testing.T) {
	handler := func(w http.ResponseWriter, q url.Values) {
		if q.Get("participantIdentifier") == "p3" && q.Get("type") == "sleep" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writePoints(w, q, 2)
	}
	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	spec := Spec{Measurements: []string{"steps", "sleep", "hrv", "weight"}}

	seqR, _ := newTestRetriever(t, HealthConnect, 1, handler)
	seq, err := seqR.Fetch(context.Background(), "tok", "proj", ids, spec)
	if err != nil {
		t.Fatalf("sequential Fetch: %v", err)
	}
	parR, _ := newTestRetriever(t, HealthConnect, 4, handler)
	par, err := parR.Fetch(context.Background(), "tok", "proj", ids, spec)
	if err != nil {
		t.Fatalf("parallel Fetch: %v", err)
	}
	if diff := cmp.Diff(seq, par); diff != "" {
		t.Errorf("parallel result differs (-seq +par):\n%s", diff)
	}
}

func TestFetch_CancelledContextAborts(t *testing.T) {
	r, _ := newTestRetriever(t, HealthConnect, 1, func(w http.ResponseWriter, q url.Values) { writePoints(w, q, 1) })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Fetch(ctx, "tok", "proj", []string{"p1"}, Spec{Measurements: []string{"steps"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewRetriever_Defaults(t *testing.T) {
	r := NewRetriever(mdh.NewClient("http://example.test", 0, nil), AppleHealth, 0, nil)
	if r.concurrency != 1 {
		t.Errorf("concurrency = %d, want 1", r.concurrency)
	}
	if r.Namespace().Name != "AppleHealth" {
		t.Errorf("Namespace = %q", r.Namespace().Name)
	}
}
