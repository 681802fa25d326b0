package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/swaggo/swag"
)

func TestSwaggerDoc_IsValidJSON(t *testing.T) {
	doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
	if err != nil {
		t.Fatalf("read doc: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("doc is not JSON: %v", err)
	}
	paths, _ := parsed["paths"].(map[string]any)
	if _, ok := paths["/_kernel/sequences/{name}/next"]; !ok {
		t.Fatalf("missing sequence path in doc: %v", paths)
	}
}

func TestMountSwagger_ServesDoc(t *testing.T) {
	r := chi.NewRouter()
	MountSwagger(r)
	req := httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if !json.Valid(w.Body.Bytes()) {
		t.Fatalf("doc.json is not JSON: %q", w.Body.String())
	}
}
