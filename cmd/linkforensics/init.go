package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/linkforensics/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/linkforensics.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new linkforensics data file",
		Long: `Initialize creates a new .linkforensics data file in the current directory.

The generated file includes:
- The lookup providers for identity, enrichment, WiFi, cell and IP location
- The VPN network list
- Commented examples for timezones and known Bluetooth beacons

Examples:
  # Create .linkforensics in current directory
  linkforensics init

  # Create the file at a specific path
  linkforensics init -o providers.yaml

  # Force overwrite existing file
  linkforensics init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the data file")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing data file")

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

	content, err := configTemplate.ReadFile("templates/linkforensics.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Provider keys and WiGLE credentials end up in this file.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - API keys of the WiFi and cell location providers")
	fmt.Fprintln(out, "  - Networks treated as VPN or hosting")
	fmt.Fprintln(out, "  - Known Bluetooth beacon positions")

	return nil
}
