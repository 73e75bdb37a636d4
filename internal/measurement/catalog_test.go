package measurement

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mdh-device-export/internal/mdh"
)

const allDataTypes = `[
	{"namespace":"AppleHealth","type":"Steps","enabled":true},
	{"namespace":"AppleHealth","type":"HeartRate","enabled":false},
	{"namespace":"AppleHealth","type":"RestingHeartRate"},
	{"namespace":"HealthConnect","type":"steps","enabled":false},
	{"namespace":"HealthConnect","type":"vo2-max"},
	{"namespace":"Fitbit","type":"Steps","enabled":true}
]`

func TestDataTypes_FiltersByNamespace(t *testing.T) {
	testCases := []struct {
		name      string
		ns        Namespace
		wantPath  string
		wantTypes []string
	}{
		{"apple health keeps enabled only", AppleHealth, "/api/v1/administration/projects/proj/devicedatapoints/alldatatypes", []string{"Steps"}},
		{"health connect ignores enabled", HealthConnect, "/api/v2/administration/projects/proj/devicedatapoints/alldatatypes", []string{"steps", "vo2-max"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, api := newTestRetriever(t, tc.ns, 1, func(w http.ResponseWriter, q url.Values) {
				w.Write([]byte(allDataTypes))
			})
			c, err := r.DataTypes(context.Background(), "tok", "proj")
			if err != nil {
				t.Fatalf("DataTypes: %v", err)
			}
			if got := api.path(0); got != tc.wantPath {
				t.Errorf("path = %q, want %q", got, tc.wantPath)
			}
			if c.Namespace != tc.ns.Name {
				t.Errorf("Namespace = %q", c.Namespace)
			}
			if diff := cmp.Diff(tc.wantTypes, c.Types()); diff != "" {
				t.Errorf("types mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDataTypes_EmptyRendersBrackets(t *testing.T) {
	r, _ := newTestRetriever(t, AppleHealth, 1, func(w http.ResponseWriter, q url.Values) {
		w.Write([]byte(`[{"namespace":"HealthConnect","type":"steps"}]`))
	})
	c, err := r.DataTypes(context.Background(), "tok", "proj")
	if err != nil {
		t.Fatalf("DataTypes: %v", err)
	}
	out, err := c.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if out != "[]" {
		t.Errorf("JSON = %q, want []", out)
	}
}

func TestDataTypes_NonSuccessIsError(t *testing.T) {
	r, _ := newTestRetriever(t, HealthConnect, 1, func(w http.ResponseWriter, q url.Values) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("nope"))
	})
	c, err := r.DataTypes(context.Background(), "tok", "proj")
	if err == nil {
		t.Fatalf("DataTypes = %+v, want error", c)
	}
	var se *mdh.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusForbidden {
		t.Errorf("err = %v, want StatusError 403", err)
	}
}

func TestCatalog_JSONIndent(t *testing.T) {
	c := &Catalog{Namespace: "HealthConnect", Entries: []map[string]any{{"namespace": "HealthConnect", "type": "steps"}}}
	out, err := c.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	want := "[\n  {\n    \"namespace\": \"HealthConnect\",\n    \"type\": \"steps\"\n  }\n]"
	if out != want {
		t.Errorf("JSON =\n%s\nwant\n%s", out, want)
	}
}

func TestCatalog_Coverage(t *testing.T) {
	c := &Catalog{Namespace: "AppleHealth", Entries: []map[string]any{
		{"type": "Steps"},
		{"type": "HeartRate"},
	}}
	cov := c.Coverage(AppleHealth)
	if len(cov) != len(AppleHealth.Types) {
		t.Fatalf("coverage has %d names, want %d", len(cov), len(AppleHealth.Types))
	}
	for name, want := range map[string]bool{
		"steps":      true,
		"heart_rate": true,
		"sleep":      false,
		"vo2_max":    false,
	} {
		if cov[name] != want {
			t.Errorf("coverage[%s] = %v, want %v", name, cov[name], want)
		}
	}
}
