// nportd — SEC N-PORT holdings viewer
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fundlens/nportd/api"
	"github.com/fundlens/nportd/internal/config"
	"github.com/fundlens/nportd/internal/edgar"
	"github.com/fundlens/nportd/internal/nport"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nportd",
	Short: "nportd — SEC N-PORT holdings viewer",
	Long: `nportd fetches a fund's latest N-PORT filings from SEC EDGAR,
extracts portfolio holdings from the rendered filing documents, and
serves them over an HTTP API with bulk and streaming endpoints.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(holdingsCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nportd %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("🌐 Starting nportd API server on %s\n", addr)
		srv := api.NewServer(cfg)
		return srv.ListenAndServe(addr)
	},
}

// --- Holdings Command ---

var holdingsCmd = &cobra.Command{
	Use:   "holdings [cik]",
	Short: "Fetch latest N-PORT holdings for a fund",
	Long: `Fetch the latest-date N-PORT filings for the given CIK, extract
holdings from each, and print the aggregate result as JSON.

Examples:
  nportd holdings 884394
  nportd holdings 0000884394 --limit 10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cik, ok := nport.NormalizeCIK(args[0])
		if !ok {
			return fmt.Errorf("invalid CIK: %q", args[0])
		}
		limit, _ := cmd.Flags().GetInt("limit")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		client := edgar.NewClient(
			edgar.WithUserAgent(cfg.SEC.UserAgent),
			edgar.WithSubmissionsURL(cfg.SEC.SubmissionsURL),
			edgar.WithArchivesURL(cfg.SEC.ArchivesURL),
		)
		svc := nport.NewService(client, nport.Options{
			MetadataCacheSize: cfg.Cache.MetadataSize,
			DocumentCacheSize: cfg.Cache.DocumentSize,
			HoldingsCacheSize: cfg.Cache.HoldingsSize,
			FallbackURLs:      cfg.SEC.FallbackURLs,
		})

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		result, err := svc.Aggregate(ctx, cik, limit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	holdingsCmd.Flags().Int("limit", 0, "max holdings per filing (0 = all)")
	holdingsCmd.Flags().Duration("timeout", 2*time.Minute, "overall fetch timeout")
}
