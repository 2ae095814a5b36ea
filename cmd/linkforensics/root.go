// Package main provides the entry point for the linkforensics CLI.
package main

import (
	"fmt"
	"os"

	"github.com/nao1215/linkforensics/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for linkforensics.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linkforensics",
		Short: "Forensic identity and geolocation capture for tracked links",
		Long: `linkforensics records who accessed a tracked link: the public IP and the
network behind it, local addresses leaked through ICE, a device fingerprint
and a location triangulated from GPS, WiFi, Bluetooth, cell towers or the IP.

Records are stored in SQLite under the XDG data directory by default.
Use --db-driver postgres with --postgres-dsn for a shared database.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Path to the provider and lookup table file (default: .linkforensics in current or home directory)")
	cmd.PersistentFlags().String("db-driver", config.DefaultDBDriver, "Persistence backend: sqlite, postgres or none")
	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(), "Directory of the SQLite database")
	cmd.PersistentFlags().String("postgres-dsn", "", "Connection string for the postgres driver")
	cmd.PersistentFlags().String("redis", "", "Redis address for the shared lookup cache (host:port)")
	cmd.PersistentFlags().String("proxy", "", "SOCKS5 proxy for outbound lookups (host:port)")
	cmd.PersistentFlags().Bool("mask-ip", false, "Mask IP addresses in log output")
	cmd.PersistentFlags().Bool("json-log", false, "Write logs as JSON")

	// Add subcommands
	cmd.AddCommand(NewCaptureCmd())
	cmd.AddCommand(NewShowCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewEventCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
