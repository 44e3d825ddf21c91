package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/leadscan/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/leadscan.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new leadscan configuration file",
		Long: `Initialize creates a new .leadscan configuration file in the current directory.

The generated file includes:
- Placeholders for the portal, assessor and people-search URLs
- The built-in selectors, ready to adjust when a site changes its markup
- Commented examples for proxies, headers and run defaults

Examples:
  # Create .leadscan in current directory
  leadscan init

  # Create config file at a specific path
  leadscan init -o ~/.config/leadscan/config.yaml

  # Force overwrite existing file
  leadscan init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/leadscan.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The file may hold cookies and proxy credentials.
	if err := os.WriteFile(outputPath, content, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nSet these before the first run:")
	fmt.Fprintln(out, "  - portal.search_url (or LEADSCAN_PORTAL_URL)")
	fmt.Fprintln(out, "  - assessor.search_url (or LEADSCAN_ASSESSOR_URL)")
	fmt.Fprintln(out, "  - people_search.home_url (or LEADSCAN_PEOPLE_SEARCH_URL)")
	return nil
}
