package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/quorumledger/internal/chain"
	"github.com/jmerrifield20/quorumledger/internal/handler"
	"github.com/jmerrifield20/quorumledger/internal/node"
	"github.com/jmerrifield20/quorumledger/internal/store"
	"github.com/jmerrifield20/quorumledger/pkg/client"
	"go.uber.org/zap"
)

func writeLedger(t *testing.T, l chain.Ledger) string {
	t.Helper()
	data, err := json.Marshal(l)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseIdentity(t *testing.T) {
	id, err := parseIdentity("10.0.0.1/6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if err != nil {
		t.Fatal(err)
	}
	if id.IPAddress != "10.0.0.1" || id.UUID != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("unexpected identity %+v", id)
	}

	// IPv6 addresses contain no slash, so the last one separates the uuid.
	if _, err := parseIdentity("::1/6ba7b810-9dad-11d1-80b4-00c04fd430c8"); err != nil {
		t.Errorf("ipv6: %v", err)
	}

	for _, bad := range []string{"", "10.0.0.1", "10.0.0.1/", "/6ba7b810-9dad-11d1-80b4-00c04fd430c8", "10.0.0.1/not-a-uuid"} {
		if _, err := parseIdentity(bad); err == nil {
			t.Errorf("parseIdentity(%q): expected error", bad)
		}
	}
}

func TestReadLedger_andVerdict(t *testing.T) {
	l := chain.NewGenesis(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	path := writeLedger(t, l)

	got, err := readLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	printVerdict(&out, "ledger.json", got, chain.Validate(got))
	if !strings.Contains(out.String(), "valid chain of 1 entries") {
		t.Errorf("unexpected output %q", out.String())
	}

	got.Blocks[0].Message.Content = "tampered"
	out.Reset()
	printVerdict(&out, "ledger.json", got, chain.Validate(got))
	if !strings.Contains(out.String(), "entry 0") {
		t.Errorf("expected failure at entry 0, got %q", out.String())
	}
}

func TestPrintDigests_flagsMismatch(t *testing.T) {
	l := chain.NewGenesis(time.Now())
	l.Blocks[0].Hash = strings.Repeat("0", chain.DigestSize)

	var out bytes.Buffer
	if err := printDigests(&out, l); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "MISMATCH") {
		t.Errorf("expected mismatch marker, got %q", out.String())
	}
}

func TestShare_betweenNodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	serve := func() *client.Client {
		n, err := node.New(ctx, store.NewMemoryStore(), zap.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		r := gin.New()
		handler.NewLedgerHandler(n, zap.NewNop()).Register(r.Group("/api/v1"))
		srv := httptest.NewServer(r)
		t.Cleanup(srv.Close)
		return client.MustNew(srv.URL)
	}
	src, dst := serve(), serve()

	if _, err := src.CreateGenesis(ctx); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := share(ctx, &out, src, dst); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Votes:    1 of 1") {
		t.Errorf("unexpected output %q", out.String())
	}

	latest, err := dst.LatestChain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Empty || latest.Ledger.Len() != 1 {
		t.Errorf("expected the shared genesis ledger, got %+v", latest)
	}
}
