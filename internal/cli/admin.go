package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/relay/internal/client"
	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/transport"
)

var (
	adminAddr string
	asJSON    bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show breaker, network and queue state of a running relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return adminCall(cmd.Context(), http.MethodGet, "/_relay/status")
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Force the circuit breaker of a running relay closed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return adminCall(cmd.Context(), http.MethodPost, "/_relay/reset")
	},
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, resetCmd} {
		c.Flags().StringVar(&adminAddr, "addr", "", "relay address (default http://localhost:<server.port>)")
		c.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
		rootCmd.AddCommand(c)
	}
}

func adminCall(ctx context.Context, method, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	addr := adminAddr
	if addr == "" {
		addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	t, err := transport.NewHTTP(transport.Config{BaseURL: addr})
	if err != nil {
		return err
	}
	defer t.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := t.Dispatch(ctx, domain.NewRequest(method, path, nil))
	if err != nil {
		return fmt.Errorf("relay unreachable at %s: %w", addr, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay answered %d: %s", resp.StatusCode, bytes.TrimSpace(resp.Body))
	}

	if asJSON {
		_, err := os.Stdout.Write(resp.Body)
		return err
	}
	var status client.Status
	if err := resp.Decode(&status); err != nil {
		return err
	}
	printStatus(status)
	return nil
}

func printStatus(s client.Status) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintf(w, "CIRCUIT\t%s\n", s.State)
	_, _ = fmt.Fprintf(w, "FAILURES\t%d\n", s.FailureCount)
	if s.LastFailureAt != nil {
		_, _ = fmt.Fprintf(w, "LAST FAILURE\t%s\n", s.LastFailureAt.Format(time.RFC3339))
	}
	if s.CooldownSeconds > 0 {
		_, _ = fmt.Fprintf(w, "COOLDOWN\t%.1fs\n", s.CooldownSeconds)
	}
	_, _ = fmt.Fprintf(w, "ONLINE\t%t\n", s.IsOnline)
	_, _ = fmt.Fprintf(w, "QUEUED\t%d\n", s.QueueDepth)
	_, _ = fmt.Fprintf(w, "TOKEN\t%t\n", s.TokenPresent)
	if s.Token.ExpiresAt != nil {
		_, _ = fmt.Fprintf(w, "TOKEN EXPIRES\t%s (expired: %t)\n", s.Token.ExpiresAt.Format(time.RFC3339), s.Token.Expired)
	}
	_ = w.Flush()
}
