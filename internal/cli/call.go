package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/relay/internal/control"
	"github.com/vietddude/relay/internal/core/domain"
)

var (
	callData    string
	callTimeout time.Duration
	callNoQueue bool
	callHeaders []string
)

var callCmd = &cobra.Command{
	Use:   "call METHOD PATH",
	Short: "Send one request through the pipeline and print the response",
	Args:  cobra.ExactArgs(2),
	RunE:  runCall,
}

func init() {
	callCmd.Flags().StringVarP(&callData, "data", "d", "", "request body")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "per-attempt timeout (default from config)")
	callCmd.Flags().BoolVar(&callNoQueue, "no-queue", false, "fail instead of waiting while offline")
	callCmd.Flags().StringArrayVarP(&callHeaders, "header", "H", nil, "extra header, \"Name: value\"")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	var body []byte
	if callData != "" {
		body = []byte(callData)
	}
	req := domain.NewRequest(strings.ToUpper(args[0]), args[1], body)
	for _, h := range callHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q", h)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if callTimeout > 0 {
		req.WithTimeout(callTimeout)
	}
	req.NoQueue = callNoQueue

	return withRelay(cmd.Context(), func(ctx context.Context, app *control.Relay) error {
		resp, err := app.Client().Execute(ctx, req)
		if resp != nil {
			fmt.Fprintf(os.Stderr, "HTTP %d (%d attempts, %s)\n", resp.StatusCode, resp.Attempts, resp.Latency.Round(time.Millisecond))
			os.Stdout.Write(resp.Body)
			if len(resp.Body) > 0 && resp.Body[len(resp.Body)-1] != '\n' {
				fmt.Println()
			}
		}
		return err
	})
}
