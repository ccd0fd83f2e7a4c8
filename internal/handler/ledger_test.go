package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/quorumledger/internal/chain"
	"github.com/jmerrifield20/quorumledger/internal/handler"
	"github.com/jmerrifield20/quorumledger/internal/node"
	"github.com/jmerrifield20/quorumledger/internal/store"
	"go.uber.org/zap"
)

const (
	aliceJSON = `{"ipAddress": "10.0.0.1", "uuid": "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}`
	bobJSON   = `{"ipAddress": "10.0.0.2", "uuid": "6ba7b811-9dad-11d1-80b4-00c04fd430c8"}`
)

func setupLedgerRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	n, err := node.New(context.Background(), store.NewMemoryStore(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	h := handler.NewLedgerHandler(n, zap.NewNop())
	v1 := r.Group("/api/v1")
	h.Register(v1)
	h.RegisterLegacy(r)
	return r
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

// initialised returns a router with genesis created and alice and bob registered.
func initialised(t *testing.T) *gin.Engine {
	t.Helper()
	router := setupLedgerRouter(t)
	if w, _ := do(t, router, http.MethodPost, "/api/v1/genesis", ""); w.Code != http.StatusCreated {
		t.Fatalf("genesis: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	for _, p := range []string{aliceJSON, bobJSON} {
		if w, _ := do(t, router, http.MethodPost, "/api/v1/participants", p); w.Code != http.StatusCreated {
			t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
		}
	}
	return router
}

func heldLedger(t *testing.T, router *gin.Engine) chain.Ledger {
	t.Helper()
	w, _ := do(t, router, http.MethodGet, "/api/v1/ledger", "")
	if w.Code != http.StatusOK {
		t.Fatalf("held ledger: expected 200, got %d", w.Code)
	}
	var l chain.Ledger
	if err := json.Unmarshal(w.Body.Bytes(), &l); err != nil {
		t.Fatal(err)
	}
	return l
}

func TestLatestChain_emptyObject(t *testing.T) {
	router := setupLedgerRouter(t)

	w, resp := do(t, router, http.MethodGet, "/api/v1/chain/latest", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	latest, ok := resp["latest_chain"].(map[string]any)
	if !ok || len(latest) != 0 {
		t.Errorf("expected empty latest_chain, got %v", resp["latest_chain"])
	}
}

func TestGenesis_409_whenInitialised(t *testing.T) {
	router := initialised(t)
	w, _ := do(t, router, http.MethodPost, "/api/v1/genesis", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestRegisterParticipant_400_duplicate(t *testing.T) {
	router := initialised(t)
	w, resp := do(t, router, http.MethodPost, "/api/v1/participants", aliceJSON)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp["error"] != "participant already registered" {
		t.Errorf("unexpected error %v", resp["error"])
	}
}

func TestRegisterParticipant_400_invalidFields(t *testing.T) {
	router := setupLedgerRouter(t)
	for _, body := range []string{
		`{"ipAddress": "not-an-ip", "uuid": "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}`,
		`{"ipAddress": "10.0.0.1", "uuid": "nope"}`,
		`{"ipAddress": "10.0.0.1"}`,
	} {
		if w, _ := do(t, router, http.MethodPost, "/api/v1/participants", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestSendMessage_201(t *testing.T) {
	router := initialised(t)

	body := `{"sender": ` + aliceJSON + `, "recipient": ` + bobJSON + `, "content": "hello"}`
	w, resp := do(t, router, http.MethodPost, "/api/v1/messages", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	block := resp["block"].(map[string]any)
	if int(block["index"].(float64)) != 2 {
		t.Errorf("expected index 2, got %v", block["index"])
	}

	w, resp = do(t, router, http.MethodGet, "/api/v1/ledger/verify", "")
	if w.Code != http.StatusOK || resp["valid"] != true {
		t.Errorf("verify: got %d %v", w.Code, resp)
	}
}

func TestSendMessage_400_unregistered(t *testing.T) {
	router := initialised(t)

	stranger := `{"ipAddress": "10.0.0.9", "uuid": "6ba7b819-9dad-11d1-80b4-00c04fd430c8"}`
	body := `{"sender": ` + stranger + `, "recipient": ` + bobJSON + `, "content": "hello"}`
	w, _ := do(t, router, http.MethodPost, "/api/v1/messages", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if l := heldLedger(t, router); l.Len() != 1 {
		t.Errorf("held ledger grew to %d blocks", l.Len())
	}
}

func TestSendMessage_400_missingRecipient(t *testing.T) {
	router := initialised(t)
	w, _ := do(t, router, http.MethodPost, "/api/v1/messages", `{"sender": `+aliceJSON+`, "content": "x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestShareProposal_majority(t *testing.T) {
	router := initialised(t)
	do(t, router, http.MethodPost, "/api/v1/messages", `{"sender": `+aliceJSON+`, "recipient": `+bobJSON+`, "content": "hi"}`)
	longer, _ := json.Marshal(heldLedger(t, router))

	var resp map[string]any
	for i := 0; i < 2; i++ {
		var w *httptest.ResponseRecorder
		w, resp = do(t, router, http.MethodPost, "/api/v1/proposals", string(longer))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
	}
	latest := resp["latest_chain"].(map[string]any)
	if n := len(latest["blocks"].([]any)); n != 2 {
		t.Errorf("expected 2-block winner, got %d", n)
	}
	if int(resp["votes"].(float64)) != 2 || int(resp["proposals"].(float64)) != 3 {
		t.Errorf("unexpected counts: %v", resp)
	}
}

func TestShareProposal_400_tampered(t *testing.T) {
	router := initialised(t)
	l := heldLedger(t, router)
	l.Blocks[0].Message.Content = "forged"
	body, _ := json.Marshal(l)

	w, resp := do(t, router, http.MethodPost, "/api/v1/proposals", string(body))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if int(resp["failed_at"].(float64)) != 0 {
		t.Errorf("expected failed_at 0, got %v", resp["failed_at"])
	}
}

func TestShareProposal_400_empty(t *testing.T) {
	router := setupLedgerRouter(t)
	w, _ := do(t, router, http.MethodPost, "/api/v1/proposals", `{"blocks": [], "network": {}, "status": {}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHeldLedger_404(t *testing.T) {
	router := setupLedgerRouter(t)
	w, _ := do(t, router, http.MethodGet, "/api/v1/ledger", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSync_404_noProposals(t *testing.T) {
	router := setupLedgerRouter(t)
	w, _ := do(t, router, http.MethodPost, "/api/v1/ledger/sync", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestLegacyRoutes(t *testing.T) {
	router := setupLedgerRouter(t)
	if w, _ := do(t, router, http.MethodPost, "/create-genesis", ""); w.Code != http.StatusCreated {
		t.Fatalf("create-genesis: expected 201, got %d", w.Code)
	}
	w, resp := do(t, router, http.MethodGet, "/index", "")
	if w.Code != http.StatusOK {
		t.Fatalf("index: expected 200, got %d", w.Code)
	}
	latest := resp["latest_chain"].(map[string]any)
	if n := len(latest["blocks"].([]any)); n != 1 {
		t.Errorf("expected genesis-only latest chain, got %d blocks", n)
	}
}
