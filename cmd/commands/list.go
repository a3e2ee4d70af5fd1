package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/cloudcity/internal/terraform"
)

// NewListCmd creates a new list command
func NewListCmd() *cobra.Command {
	var tfDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resources in a rendered Terraform export",
		Long: `List all resources declared in the .tf files of a rendered export
directory, together with the resources each one references.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.OutOrStdout(), tfDir)
		},
	}

	cmd.Flags().StringVarP(&tfDir, "tf-dir", "d", ".", "Path to Terraform configuration directory")

	return cmd
}

func runList(out io.Writer, tfDir string) error {
	if tfDir == "" {
		return fmt.Errorf("--tf-dir must be specified")
	}

	entries, err := os.ReadDir(tfDir)
	if err != nil {
		return fmt.Errorf("failed to read Terraform directory: %v", err)
	}

	var resources []terraform.Resource
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".tf" {
			continue
		}
		tfPath := filepath.Join(tfDir, entry.Name())
		cfg, err := terraform.ParseConfig(tfPath)
		if err != nil {
			return fmt.Errorf("failed to parse Terraform file %s: %v", tfPath, err)
		}
		resources = append(resources, cfg.Resources...)
	}

	if len(resources) == 0 {
		fmt.Fprintln(out, "No resources found in the Terraform files.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tTYPE\tREFERENCES")
	for _, r := range resources {
		refs := strings.Join(r.References, ",")
		if refs == "" {
			refs = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Address(), r.Type, refs)
	}
	return w.Flush()
}
