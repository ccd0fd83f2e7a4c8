package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/quorumledger/internal/chain"
	"github.com/jmerrifield20/quorumledger/internal/handler"
	"github.com/jmerrifield20/quorumledger/internal/node"
	"github.com/jmerrifield20/quorumledger/internal/store"
	"github.com/jmerrifield20/quorumledger/pkg/client"
	"go.uber.org/zap"
)

var ctx = context.Background()

var (
	alice = chain.Identity{IPAddress: "10.0.0.1", UUID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}
	bob   = chain.Identity{IPAddress: "10.0.0.2", UUID: "6ba7b811-9dad-11d1-80b4-00c04fd430c8"}
)

// ── Test node ───────────────────────────────────────────────────────────

func nodeServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	n, err := node.New(ctx, store.NewMemoryStore(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	r := gin.New()
	handler.NewLedgerHandler(n, zap.NewNop()).Register(r.Group("/api/v1"))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestClient_fullFlow(t *testing.T) {
	c := client.MustNew(nodeServer(t).URL)

	latest, err := c.LatestChain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !latest.Empty {
		t.Error("expected empty latest chain before genesis")
	}

	genesis, err := c.CreateGenesis(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v := chain.Validate(genesis); !v.Valid {
		t.Fatalf("genesis invalid: %+v", v)
	}

	for _, id := range []chain.Identity{alice, bob} {
		if err := c.RegisterParticipant(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := c.Participants(ctx)
	if err != nil || len(ids) != 2 {
		t.Fatalf("Participants: %v, %v", ids, err)
	}

	entry, err := c.SendMessage(ctx, chain.Message{Sender: alice, Recipient: bob, Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Index != 2 || entry.PreviousHash != genesis.Blocks[0].Hash {
		t.Errorf("unexpected entry %+v", entry)
	}

	held, err := c.HeldLedger(ctx)
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.VerifyHeld(ctx)
	if err != nil || !v.Valid {
		t.Fatalf("VerifyHeld: %+v, %v", v, err)
	}

	for i := 0; i < 2; i++ {
		if latest, err = c.ShareProposal(ctx, held); err != nil {
			t.Fatal(err)
		}
	}
	if latest.Votes != 2 || latest.Ledger.Len() != 2 {
		t.Errorf("unexpected winner: votes=%d len=%d", latest.Votes, latest.Ledger.Len())
	}

	idx, err := c.Index(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if idx.LatestChain == nil || idx.LatestChain.Len() != 2 {
		t.Errorf("unexpected index %+v", idx)
	}
}

func TestClient_invalidProposal(t *testing.T) {
	c := client.MustNew(nodeServer(t).URL)
	genesis, err := c.CreateGenesis(ctx)
	if err != nil {
		t.Fatal(err)
	}
	genesis.Blocks[0].Proof = 7

	_, err = c.ShareProposal(ctx, genesis)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.FailedAt == nil || *apiErr.FailedAt != 0 {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestClient_notFound(t *testing.T) {
	c := client.MustNew(nodeServer(t).URL)
	if _, err := c.HeldLedger(ctx); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNew_rejectsBadTimeout(t *testing.T) {
	if _, err := client.New("http://localhost", client.WithTimeout(0)); err == nil {
		t.Error("expected error for zero timeout")
	}
}
