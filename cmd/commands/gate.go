package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/yourusername/cloudcity/internal/gate"
	"github.com/yourusername/cloudcity/internal/report"
)

type gateOptions struct {
	server    string
	projectID string
	delta     string
	strict    bool
	timeout   time.Duration
	format    report.FormatType
}

// NewGateCmd creates the pipeline gate command
func NewGateCmd() *cobra.Command {
	opts := gateOptions{}

	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Check a projected cost change against the project budget",
		Long: `Ask a running CloudCity server whether a projected monthly cost change
fits the project's budget. The command exits non-zero when the gate fails, so
it can guard a CI pipeline step.`,
		Example: `  cloudcity gate --project 3f0c... --delta 125.50 --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.format = report.FormatType(outputFmt)
			return runGate(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "CloudCity server URL")
	cmd.Flags().StringVar(&opts.projectID, "project", "", "Project ID")
	cmd.Flags().StringVar(&opts.delta, "delta", "0", "Projected monthly cost delta")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail on WARNING as well as EXCEEDED")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func runGate(ctx context.Context, out io.Writer, opts gateOptions) error {
	if opts.projectID == "" {
		return fmt.Errorf("--project must be specified")
	}
	delta, err := decimal.NewFromString(opts.delta)
	if err != nil {
		return fmt.Errorf("invalid delta %q: %w", opts.delta, err)
	}
	formatter, err := report.NewFormatter(opts.format)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]interface{}{
		"projectedMonthlyDelta": delta,
		"strictMode":            opts.strict,
	})
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(opts.server, "/") + "/api/v1/projects/" + url.PathEscape(opts.projectID) + "/pipeline/check"

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("pipeline check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("pipeline check returned %d: %s", resp.StatusCode, e.Error)
	}

	// money arrives as strings and percentages as numbers; decimal reads both
	var result gate.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("malformed pipeline check response: %w", err)
	}

	if err := write(out, formatter, result); err != nil {
		return err
	}
	if !result.Pass {
		return ErrGateFailed
	}
	return nil
}
