package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/yourusername/cloudcity/internal/app"
	"github.com/yourusername/cloudcity/internal/discovery"
	"github.com/yourusername/cloudcity/internal/models"
	"github.com/yourusername/cloudcity/internal/project"
	"github.com/yourusername/cloudcity/internal/report"
)

type discoverOptions struct {
	name       string
	budget     string
	regions    []string
	accountID  string
	roleARN    string
	externalID string
	stub       bool
	plan       bool
}

// NewDiscoverCmd creates the one-shot discover command
func NewDiscoverCmd() *cobra.Command {
	opts := discoverOptions{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover an account's topology and report cost and health",
		Long: `Create a throwaway project, run a discovery over the given regions and
print the resource graph summary and health report. With --plan a Terraform
configuration is rendered into the export directory as well.`,
		Example: `  cloudcity discover --regions us-east-1,eu-west-1 --role-arn arn:aws:iam::123456789012:role/Reader
  cloudcity discover --stub --regions us-east-1 --budget 100 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "local", "Project name")
	cmd.Flags().StringVar(&opts.budget, "budget", "", "Monthly budget for the project")
	cmd.Flags().StringSliceVarP(&opts.regions, "regions", "r", []string{"us-east-1"}, "Regions to discover")
	cmd.Flags().StringVar(&opts.accountID, "account-id", "", "Account ID recorded on the run")
	cmd.Flags().StringVar(&opts.roleARN, "role-arn", "", "Role to assume for discovery")
	cmd.Flags().StringVar(&opts.externalID, "external-id", "", "External ID for the assumed role")
	cmd.Flags().BoolVar(&opts.stub, "stub", false, "Use the built-in stub provider instead of AWS")
	cmd.Flags().BoolVar(&opts.plan, "plan", false, "Render a Terraform plan after discovery")

	return cmd
}

func runDiscover(cmd *cobra.Command, opts discoverOptions) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.stub {
		cfg.Discovery.Stub = true
	}
	// one-shot runs never need to survive the process
	cfg.Storage.Driver = "memory"

	formatter, err := report.NewFormatter(report.FormatType(outputFmt))
	if err != nil {
		return err
	}

	in := project.CreateInput{Name: opts.name}
	if opts.budget != "" {
		b, err := decimal.NewFromString(opts.budget)
		if err != nil {
			return fmt.Errorf("invalid budget %q: %w", opts.budget, err)
		}
		in.MonthlyBudget = &b
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.NewContainer(ctx, cfg, app.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Close(closeCtx)
	}()

	p, err := container.Projects.Create(ctx, in)
	if err != nil {
		return err
	}

	run, err := container.Discovery.Create(ctx, p.ID, discovery.CreateRequest{
		Provider:   "aws",
		AccountID:  opts.accountID,
		RoleARN:    opts.roleARN,
		ExternalID: opts.externalID,
		Regions:    opts.regions,
	})
	if err != nil {
		return err
	}
	if _, err := container.Discovery.Execute(ctx, p.ID, run.ID); err != nil {
		return err
	}
	run, err = container.Discovery.Wait(ctx, p.ID, run.ID)
	if err != nil {
		return err
	}
	if run.Status != models.DiscoveryCompleted {
		return fmt.Errorf("discovery %s ended %s: %s", run.ID, run.Status, run.Error)
	}

	out := cmd.OutOrStdout()

	summary, err := container.Graph.Summary(ctx, p.ID, cfg.Graph.TopN)
	if err != nil {
		return err
	}
	if err := write(out, formatter, summary); err != nil {
		return err
	}

	healthReport, err := container.Health.Analyze(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := write(out, formatter, healthReport); err != nil {
		return err
	}

	if !opts.plan {
		return nil
	}
	export, err := container.Exports.CreatePlan(ctx, p.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Terraform plan %s written to %s (%s)\n", export.ID, export.ArtifactPath, export.Status)
	return nil
}

func write(out io.Writer, f report.Formatter, v interface{}) error {
	s, err := f.Format(v)
	if err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	_, err = fmt.Fprintln(out, s)
	return err
}
