package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"callmgr/internal/registry"

	"github.com/gin-gonic/gin"
)

func testRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/nodes", h.ListNodes)
	r.GET("/v1/nodes/:node", h.GetNode)
	r.GET("/v1/nodes/:node/availability", h.GetNodeAvailability)
	return r
}

func TestListNodesEmpty(t *testing.T) {
	r := testRouter(Handlers{Registry: registry.New()})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/nodes", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	var body struct {
		Nodes []json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body.Nodes) != 0 {
		t.Fatalf("expected no nodes, got %d", len(body.Nodes))
	}
}

func TestGetNodeUnknown(t *testing.T) {
	r := testRouter(Handlers{Registry: registry.New()})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/nodes/freeswitch@fs9.example.com", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
}

func TestGetNodeAvailabilityBadMin(t *testing.T) {
	reg := registry.New()
	r := testRouter(Handlers{Registry: reg})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/nodes/x@y/availability?min=lots", nil))

	// Unknown node wins over the bad parameter; lookup runs first.
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
}

func TestHandlersWithoutRegistry(t *testing.T) {
	r := testRouter(Handlers{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/nodes", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", w.Code)
	}
}
