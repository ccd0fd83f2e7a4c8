// Package client is the Go client for a ledger node's HTTP API.
//
// It covers the whole node surface: initialising a ledger, registering
// participants, sending messages, sharing proposals and reading the
// consensus winner.
//
//	c, err := client.New("http://localhost:8000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := c.RegisterParticipant(ctx, me); err != nil {
//	    log.Fatal(err)
//	}
//	entry, err := c.SendMessage(ctx, client.Message{
//	    Sender: me, Recipient: peer, Content: "hello",
//	})
//
// Sharing one node's held ledger with another is a two-step call:
//
//	held, _ := a.HeldLedger(ctx)
//	latest, _ := b.ShareProposal(ctx, held)
package client
