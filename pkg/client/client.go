package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmerrifield20/quorumledger/internal/chain"
)

// Ledger types shared with the node, re-exported for callers outside this
// module.
type (
	Ledger   = chain.Ledger
	Entry    = chain.Entry
	Message  = chain.Message
	Identity = chain.Identity
	Verdict  = chain.Verdict
)

// maxResponseBytes bounds how much of a response body is read. Ledgers grow
// without limit, so this is generous.
const maxResponseBytes = 64 << 20

// ErrNotFound is returned when the node has no ledger or no proposals.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the node.
type APIError struct {
	StatusCode int
	Message    string
	FailedAt   *int   // set when a proposal was rejected as an invalid chain
	Reason     string // validation reason, if any
}

func (e *APIError) Error() string {
	if e.FailedAt != nil {
		return fmt.Sprintf("node returned %d: %s at block %d: %s", e.StatusCode, e.Message, *e.FailedAt, e.Reason)
	}
	return fmt.Sprintf("node returned %d: %s", e.StatusCode, e.Message)
}

// Latest is the consensus outcome reported by a node.
type Latest struct {
	Ledger    chain.Ledger
	Votes     int
	Proposals int
	Distinct  int
	Empty     bool // no proposals recorded yet
}

// Index is the node's summary view.
type Index struct {
	Participants []chain.Identity
	LatestChain  *chain.Ledger // nil when there are no proposals
}

// Client talks to one ledger node.
type Client struct {
	base       string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient.Timeout = d
		return nil
	}
}

// New creates a Client for the node at base, e.g. "http://localhost:8000".
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// CreateGenesis initialises the node's ledger.
func (c *Client) CreateGenesis(ctx context.Context) (chain.Ledger, error) {
	var resp struct {
		Ledger chain.Ledger `json:"ledger"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/genesis", nil, &resp); err != nil {
		return chain.Ledger{}, err
	}
	return resp.Ledger, nil
}

// RegisterParticipant registers id with the node.
func (c *Client) RegisterParticipant(ctx context.Context, id chain.Identity) error {
	return c.call(ctx, http.MethodPost, "/api/v1/participants", id, nil)
}

// Participants lists the node's registered participants.
func (c *Client) Participants(ctx context.Context) ([]chain.Identity, error) {
	var resp struct {
		Participants []chain.Identity `json:"participants"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/participants", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

// SendMessage appends msg to the node's held ledger and returns the new entry.
func (c *Client) SendMessage(ctx context.Context, msg chain.Message) (chain.Entry, error) {
	var resp struct {
		Block chain.Entry `json:"block"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/messages", msg, &resp); err != nil {
		return chain.Entry{}, err
	}
	return resp.Block, nil
}

// ShareProposal submits l as a proposal and returns the resulting winner.
func (c *Client) ShareProposal(ctx context.Context, l chain.Ledger) (*Latest, error) {
	var resp latestResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/proposals", l, &resp); err != nil {
		return nil, err
	}
	return resp.latest()
}

// LatestChain returns the node's current consensus winner.
func (c *Client) LatestChain(ctx context.Context) (*Latest, error) {
	var resp latestResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/chain/latest", nil, &resp); err != nil {
		return nil, err
	}
	return resp.latest()
}

// HeldLedger returns the ledger the node extends with new messages.
func (c *Client) HeldLedger(ctx context.Context) (chain.Ledger, error) {
	var l chain.Ledger
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger", nil, &l); err != nil {
		return chain.Ledger{}, err
	}
	return l, nil
}

// VerifyHeld asks the node to validate its held ledger.
func (c *Client) VerifyHeld(ctx context.Context) (chain.Verdict, error) {
	var v chain.Verdict
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &v); err != nil {
		return chain.Verdict{}, err
	}
	return v, nil
}

// Sync makes the node adopt its consensus winner as the held ledger.
func (c *Client) Sync(ctx context.Context) (*Latest, error) {
	var resp latestResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/ledger/sync", nil, &resp); err != nil {
		return nil, err
	}
	return resp.latest()
}

// Index returns the node's participants and consensus winner.
func (c *Client) Index(ctx context.Context) (*Index, error) {
	var resp struct {
		Participants []chain.Identity `json:"participants"`
		LatestChain  json.RawMessage  `json:"latest_chain"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/index", nil, &resp); err != nil {
		return nil, err
	}
	out := &Index{Participants: resp.Participants}
	if l, ok, err := decodeLatestChain(resp.LatestChain); err != nil {
		return nil, err
	} else if ok {
		out.LatestChain = &l
	}
	return out, nil
}

type latestResponse struct {
	LatestChain json.RawMessage `json:"latest_chain"`
	Votes       int             `json:"votes"`
	Proposals   int             `json:"proposals"`
	Distinct    int             `json:"distinct"`
}

func (r *latestResponse) latest() (*Latest, error) {
	l, ok, err := decodeLatestChain(r.LatestChain)
	if err != nil {
		return nil, err
	}
	return &Latest{
		Ledger:    l,
		Votes:     r.Votes,
		Proposals: r.Proposals,
		Distinct:  r.Distinct,
		Empty:     !ok,
	}, nil
}

// decodeLatestChain treats an empty object as "no winner".
func decodeLatestChain(raw json.RawMessage) (chain.Ledger, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("null")) {
		return chain.Ledger{}, false, nil
	}
	var l chain.Ledger
	if err := json.Unmarshal(trimmed, &l); err != nil {
		return chain.Ledger{}, false, fmt.Errorf("decode latest chain: %w", err)
	}
	return l, true, nil
}

// call sends reqBody as JSON (when non-nil) and decodes a 2xx response into
// respBody (when non-nil).
func (c *Client) call(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, data)
	}
	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(data, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(status int, data []byte) error {
	var body struct {
		Error    string `json:"error"`
		FailedAt *int   `json:"failed_at"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	apiErr := &APIError{StatusCode: status, Message: body.Error, FailedAt: body.FailedAt, Reason: body.Reason}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	}
	return apiErr
}
