// =============================================================================
// CFDI Transform - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. All other commands
// are attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (cfdi-transform)
//   ├── processCmd   (batch: input dir -> job outputs)
//   ├── transformCmd (one document -> stdout or file)
//   ├── serveCmd     (HTTP surface)
//   ├── validateCmd  (configuration, jobs and profiles)
//   ├── templateCmd  (XLSX column template of a profile)
//   ├── schemaCmd    (XSD of the XML record dump)
//   └── versionCmd
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --env-file, --verbose)
//   2. Loading the .env file before any command reads its settings
//   3. Setting up logging
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/cfdi-transform/internal/catalog"
	"github.com/ginjaninja78/cfdi-transform/internal/config"
	"github.com/ginjaninja78/cfdi-transform/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// envFile holds the path to an optional .env file.
var envFile string

// verbose enables debug logging when set to true.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cfdi-transform",
	Short: "CFDI Transform - Stream CFDI XML documents into flat tables and records",
	Long: `CFDI Transform reads Mexican electronic invoices (CFDI 3.3 with payments,
payroll and local tax complements) in one forward pass and turns them into
flat rows (CSV, XLSX, PostgreSQL) or structured records (JSON, YAML, XML).

Key Features:
  - Catalog-driven field capture with schema variants
  - Column specifications in YAML or XLSX templates
  - Concurrent batch processing with per-file error reporting
  - HTTP endpoint for single-document transforms

Example Usage:
  cfdi-transform process                          # Process the input directory
  cfdi-transform transform pagos10 doc.xml        # One document to stdout as CSV
  cfdi-transform serve                            # Start the HTTP server
  cfdi-transform validate                         # Check configuration and profiles`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		logging.Setup(logLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT"))
		return nil
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().StringVar(
		&envFile,
		"env-file",
		".env",
		"Path to a .env file loaded before the configuration",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig loads the main configuration and re-installs the logger with
// its settings.
func loadConfig() (*config.MainConfig, error) {
	mainConfig, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config: %w", err)
	}
	logging.Setup(logLevel(mainConfig.LogLevel), mainConfig.LogFormat)
	slog.Debug("configuration loaded", "config", cfgFile)
	return mainConfig, nil
}

// loadRegistry returns the built-in catalogs and profiles plus the ones in
// profilesDir. A missing profilesDir is not an error.
func loadRegistry(profilesDir string) (*catalog.Registry, error) {
	registry, err := catalog.Builtin()
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in profiles: %w", err)
	}
	if profilesDir == "" {
		return registry, nil
	}
	if _, err := os.Stat(profilesDir); os.IsNotExist(err) {
		return registry, nil
	}
	if err := registry.LoadDir(profilesDir); err != nil {
		return nil, fmt.Errorf("failed to load profiles from %s: %w", profilesDir, err)
	}
	return registry, nil
}

// logLevel applies --verbose over the configured level.
func logLevel(level string) string {
	if verbose {
		return "debug"
	}
	return level
}

// openOutput returns the file at path, or stdout for "" and "-".
func openOutput(path string) (*os.File, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, f.Close, nil
}
