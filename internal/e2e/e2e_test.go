package e2e

import (
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"

	"bbkernel/internal/apperr"
	"bbkernel/internal/kernel"
	"bbkernel/internal/sequence"
	"bbkernel/pkg/types"
)

// TestE2E_DumpThenRestore boots twice on the same container directory: the
// first boot compiles and dumps, the second restores and still runs the
// dumped listeners.
func TestE2E_DumpThenRestore(t *testing.T) {
	cfg := newConfig(t)
	var inits atomic.Int32

	srv, _ := newServer(t, cfg, &inits)
	_, b := doRequest(t, http.MethodGet, srv.URL+"/_kernel/status", "", "")
	st := decode[types.StatusResponse](t, b)
	if st.State != "ready" || st.Restored || !st.Compiled {
		t.Fatalf("first boot status: %+v", st)
	}
	if st.DumpPath != filepath.Join(cfg.ContainerDir, "bbapp_container.json") {
		t.Fatalf("dump path: %s", st.DumpPath)
	}
	if inits.Load() != 1 {
		t.Fatalf("inits=%d", inits.Load())
	}

	srv2, _ := newServer(t, cfg, &inits)
	_, b = doRequest(t, http.MethodGet, srv2.URL+"/_kernel/status", "", "")
	st = decode[types.StatusResponse](t, b)
	if !st.Restored || !st.Compiled {
		t.Fatalf("second boot status: %+v", st)
	}
	if inits.Load() != 2 {
		t.Fatalf("restored listeners did not run: inits=%d", inits.Load())
	}

	_, b = doRequest(t, http.MethodGet, srv2.URL+"/_kernel/listeners", "", "")
	ls := decode[types.ListenersResponse](t, b)
	if len(ls.Listeners) != 2 || ls.Listeners[0].Listener != "greeter::onInit" || ls.Listeners[0].Priority != 5 {
		t.Fatalf("listeners: %+v", ls.Listeners)
	}
}

func TestE2E_ServicesFilter(t *testing.T) {
	var inits atomic.Int32
	srv, _ := newServer(t, newConfig(t), &inits)

	resp, b := doRequest(t, http.MethodGet, srv.URL+"/_kernel/services?tag=event.listener", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, b)
	}
	svcs := decode[types.ServicesResponse](t, b)
	if svcs.Total != 2 {
		t.Fatalf("tagged services: %+v", svcs)
	}

	resp, b = doRequest(t, http.MethodGet, srv.URL+"/_kernel/services?start=-1", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if e := decode[types.ErrorResponse](t, b); e.Code != apperr.CodeBadRequest {
		t.Fatalf("code=%d", e.Code)
	}
}

func TestE2E_ApplicationRoutes(t *testing.T) {
	var inits atomic.Int32
	srv, _ := newServer(t, newConfig(t), &inits)

	resp, b := doRequest(t, http.MethodGet, srv.URL+"/rest/2/pages?q=go&count=10", "application/json", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, b)
	}
	got := decode[pageList](t, b)
	want := pageList{Version: "2", Search: "go", Start: 0, Count: 10, Greeting: "hello"}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}

	resp, b = doRequest(t, http.MethodGet, srv.URL+"/rest/2/pages", "application/json", "")
	if got := decode[pageList](t, b); resp.StatusCode != http.StatusOK || got.Count != 5 {
		t.Fatalf("default count: status=%d %+v", resp.StatusCode, got)
	}

	cases := []struct {
		name, method, path, accept string
		status, code               int
	}{
		{"accept requirement", http.MethodGet, "/rest/2/pages", "text/html", http.StatusNotFound, apperr.CodeNotFound},
		{"path requirement", http.MethodGet, "/rest/two/pages", "application/json", http.StatusNotFound, apperr.CodeNotFound},
		{"method", http.MethodPost, "/rest/2/pages", "application/json", http.StatusMethodNotAllowed, apperr.CodeMethodNotAllowed},
		{"count bound", http.MethodGet, "/rest/2/pages?count=50", "application/json", http.StatusBadRequest, apperr.CodeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, b := doRequest(t, tc.method, srv.URL+tc.path, tc.accept, "")
			if resp.StatusCode != tc.status {
				t.Fatalf("status=%d body=%s", resp.StatusCode, b)
			}
			if e := decode[types.ErrorResponse](t, b); e.Code != tc.code {
				t.Fatalf("code=%d want %d", e.Code, tc.code)
			}
		})
	}

	resp, b = doRequest(t, http.MethodGet, srv.URL+"/status", "", "")
	if resp.StatusCode != http.StatusOK || decode[types.StatusResponse](t, b).State != "ready" {
		t.Fatalf("status route: %d %s", resp.StatusCode, b)
	}
}

func TestE2E_Sequences(t *testing.T) {
	cfg := newConfig(t)
	cfg.Database.Driver = sequence.DriverSQLite
	cfg.Database.DSN = filepath.Join(t.TempDir(), "seq.db")
	var inits atomic.Int32
	srv, app := newServer(t, cfg, &inits)
	if _, err := app.Sequencer(); err != nil {
		t.Fatalf("sequencer: %v", err)
	}

	_, b := doRequest(t, http.MethodPost, srv.URL+"/_kernel/sequences/invoice/next?default=7", "", "")
	if v := decode[types.SequenceValue](t, b); v.Value != 7 {
		t.Fatalf("first next: %+v", v)
	}
	resp, b := doRequest(t, http.MethodPut, srv.URL+"/_kernel/sequences/invoice", "", `{"value":100}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("raise status=%d body=%s", resp.StatusCode, b)
	}
	_, b = doRequest(t, http.MethodPut, srv.URL+"/_kernel/sequences/invoice", "", `{"value":3}`)
	if v := decode[types.SequenceValue](t, b); v.Value != 100 {
		t.Fatalf("raise never lowers: %+v", v)
	}
	_, b = doRequest(t, http.MethodPost, srv.URL+"/_kernel/sequences/invoice/next", "", "")
	if v := decode[types.SequenceValue](t, b); v.Value != 101 {
		t.Fatalf("next after raise: %+v", v)
	}

	_, b = doRequest(t, http.MethodGet, srv.URL+"/_kernel/services?prefix="+kernel.SequencerServiceID, "", "")
	if svcs := decode[types.ServicesResponse](t, b); svcs.Total != 1 || !svcs.Services[0].Initialized {
		t.Fatalf("sequencer service: %+v", svcs)
	}
}

func TestE2E_SequencesWithoutDatabase(t *testing.T) {
	var inits atomic.Int32
	srv, _ := newServer(t, newConfig(t), &inits)
	resp, b := doRequest(t, http.MethodPost, srv.URL+"/_kernel/sequences/invoice/next", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", resp.StatusCode, b)
	}
}
