package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/quorumledger/internal/chain"
	"github.com/jmerrifield20/quorumledger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	nodeURL     string
	cfgFile     string
	callTimeout time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Quorum ledger CLI",
	Long: `ledgerctl talks to a ledger node and inspects ledger files.

The verify, digest and resolve commands work offline on JSON files. The
remaining commands call a running node (--node, or node_url in
~/.ledgerctl/config.yaml).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.ledgerctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("LEDGERCTL")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if nodeURL == "" {
			nodeURL = viper.GetString("node_url")
		}
		if nodeURL == "" {
			nodeURL = "http://localhost:8000"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.ledgerctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "ledger node URL (default http://localhost:8000)")
	rootCmd.PersistentFlags().DurationVar(&callTimeout, "timeout", 10*time.Second, "per-request timeout")

	rootCmd.AddCommand(verifyCmd, digestCmd, resolveCmd)
	rootCmd.AddCommand(genesisCmd, registerCmd, sendCmd, latestCmd, heldCmd, shareCmd, syncCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	return client.New(nodeURL, client.WithTimeout(callTimeout))
}

// ── offline ──────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <ledger.json>",
	Short: "Check that a ledger file is an intact hash chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := readLedger(args[0])
		if err != nil {
			return err
		}
		v := chain.Validate(l)
		printVerdict(cmd.OutOrStdout(), args[0], l, v)
		return v.Err()
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest <ledger.json>",
	Short: "Print the recomputed digest of every entry in a ledger file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := readLedger(args[0])
		if err != nil {
			return err
		}
		return printDigests(cmd.OutOrStdout(), l)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <ledger.json> [ledger.json] ...",
	Short: "Run a plurality vote over ledger files, in argument order",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proposals := make([]chain.Ledger, 0, len(args))
		for _, path := range args {
			l, err := readLedger(path)
			if err != nil {
				return err
			}
			proposals = append(proposals, l)
		}
		res, err := chain.Resolve(proposals)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Votes:    %d of %d (%d distinct)\n\n", res.Votes, res.Total, res.Distinct)
		return writeJSON(w, res.Ledger)
	},
}

// readLedger accepts either a bare ledger object or the node's on-disk
// ledger.json.
func readLedger(path string) (chain.Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return chain.Ledger{}, err
	}
	var l chain.Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return chain.Ledger{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return l, nil
}

func printVerdict(w io.Writer, name string, l chain.Ledger, v chain.Verdict) {
	if v.Valid {
		fmt.Fprintf(w, "✓ %s: valid chain of %d entries\n", name, l.Len())
		return
	}
	if v.FailedAt < 0 {
		fmt.Fprintf(w, "✗ %s: %s\n", name, v.Reason)
		return
	}
	fmt.Fprintf(w, "✗ %s: entry %d: %s\n", name, v.FailedAt, v.Reason)
}

func printDigests(w io.Writer, l chain.Ledger) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tDIGEST\tSTORED")
	for _, e := range l.Blocks {
		d := chain.Digest(e)
		mark := "ok"
		if d != e.Hash {
			mark = "MISMATCH"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Index, d, mark)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── node ─────────────────────────────────────────────────────────────────────

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Create the genesis ledger on the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		l, err := c.CreateGenesis(cmd.Context())
		if err != nil {
			return fmt.Errorf("create genesis: %w", err)
		}
		return writeJSON(cmd.OutOrStdout(), l)
	},
}

var (
	regIP   string
	regUUID string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a participant identity with the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		id := chain.Identity{IPAddress: regIP, UUID: regUUID}
		if id.UUID == "" {
			id.UUID = uuid.NewString()
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.RegisterParticipant(cmd.Context(), id); err != nil {
			return fmt.Errorf("register participant: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Participant registered\n\n  IP:   %s\n  UUID: %s\n", id.IPAddress, id.UUID)
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&regIP, "ip", "", "participant IP address")
	registerCmd.Flags().StringVar(&regUUID, "uuid", "", "participant UUID (generated when empty)")
	_ = registerCmd.MarkFlagRequired("ip")
}

var (
	sendFrom    string
	sendTo      string
	sendContent string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Append a message to the node's held ledger",
	Long: `send appends a message entry. --from and --to take the form ip/uuid of
registered participants.

  ledgerctl send --from 10.0.0.1/6f1c... --to 10.0.0.2/93ab... --content hello`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sender, err := parseIdentity(sendFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		recipient, err := parseIdentity(sendTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		e, err := c.SendMessage(cmd.Context(), chain.Message{
			Sender:    sender,
			Recipient: recipient,
			Content:   sendContent,
		})
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		return writeJSON(cmd.OutOrStdout(), e)
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendFrom, "from", "", "sender as ip/uuid")
	sendCmd.Flags().StringVar(&sendTo, "to", "", "recipient as ip/uuid")
	sendCmd.Flags().StringVar(&sendContent, "content", "", "message content")
	_ = sendCmd.MarkFlagRequired("from")
	_ = sendCmd.MarkFlagRequired("to")
}

// parseIdentity reverses chain.Identity.String.
func parseIdentity(s string) (chain.Identity, error) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != '/' {
			continue
		}
		ip, id := s[:i], s[i+1:]
		if ip == "" || id == "" {
			break
		}
		if _, err := uuid.Parse(id); err != nil {
			return chain.Identity{}, fmt.Errorf("invalid uuid %q: %w", id, err)
		}
		return chain.Identity{IPAddress: ip, UUID: id}, nil
	}
	return chain.Identity{}, fmt.Errorf("expected ip/uuid, got %q", s)
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the node's consensus ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		latest, err := c.LatestChain(cmd.Context())
		if err != nil {
			return fmt.Errorf("latest chain: %w", err)
		}
		return printLatest(cmd.OutOrStdout(), latest)
	},
}

var heldCmd = &cobra.Command{
	Use:   "held",
	Short: "Show and verify the ledger the node appends to",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		l, err := c.HeldLedger(cmd.Context())
		if errors.Is(err, client.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "node holds no ledger yet; run 'ledgerctl genesis' or send a message")
			return nil
		}
		if err != nil {
			return fmt.Errorf("held ledger: %w", err)
		}
		v, err := c.VerifyHeld(cmd.Context())
		if err != nil {
			return fmt.Errorf("verify held ledger: %w", err)
		}
		printVerdict(cmd.OutOrStdout(), "held", l, v)
		return writeJSON(cmd.OutOrStdout(), l)
	},
}

var (
	shareFrom string
	shareTo   string
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Copy one node's held ledger to another node as a proposal",
	Long: `share fetches the held ledger from --from and submits it to --to
(default --node) as a consensus proposal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		to := shareTo
		if to == "" {
			to = nodeURL
		}
		src, err := client.New(shareFrom, client.WithTimeout(callTimeout))
		if err != nil {
			return err
		}
		dst, err := client.New(to, client.WithTimeout(callTimeout))
		if err != nil {
			return err
		}
		return share(cmd.Context(), cmd.OutOrStdout(), src, dst)
	},
}

func init() {
	shareCmd.Flags().StringVar(&shareFrom, "from", "", "node whose held ledger is shared")
	shareCmd.Flags().StringVar(&shareTo, "to", "", "node receiving the proposal (default --node)")
	_ = shareCmd.MarkFlagRequired("from")
}

func share(ctx context.Context, w io.Writer, src, dst *client.Client) error {
	l, err := src.HeldLedger(ctx)
	if err != nil {
		return fmt.Errorf("fetch held ledger: %w", err)
	}
	latest, err := dst.ShareProposal(ctx, l)
	if err != nil {
		return fmt.Errorf("share proposal: %w", err)
	}
	fmt.Fprintf(w, "✓ Proposal of %d entries accepted\n\n", l.Len())
	return printLatest(w, latest)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Make the node adopt its consensus ledger as the held ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		latest, err := c.Sync(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		return printLatest(cmd.OutOrStdout(), latest)
	},
}

func printLatest(w io.Writer, latest *client.Latest) error {
	if latest.Empty {
		fmt.Fprintln(w, "no proposals recorded")
		return nil
	}
	fmt.Fprintf(w, "Votes:    %d of %d (%d distinct)\n", latest.Votes, latest.Proposals, latest.Distinct)
	fmt.Fprintf(w, "Entries:  %d\n\n", latest.Ledger.Len())
	return writeJSON(w, latest.Ledger)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ledgerctl %s\n", version)
	},
}
