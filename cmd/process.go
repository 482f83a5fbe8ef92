// =============================================================================
// CFDI Transform - Process Command
// =============================================================================
//
// This file defines the 'process' command, the batch entry point. It runs
// every XML document in the input directory through the job that matches
// its file name.
//
// COMMAND USAGE:
//   cfdi-transform process [flags]
//
// FLAGS:
//   --dry-run : Decode and flatten without writing outputs or archiving
//   --file    : Process only this file instead of scanning the input directory
//   --job     : Process only files for a specific job
//
// PROCESSING PIPELINE:
//   1. Load configuration, jobs and profiles
//   2. Resolve each job into a plan
//   3. Discover XML files in the input directory
//   4. Decode and flatten files concurrently
//   5. Write one output per job, archive processed files
//   6. Write the summary and error logs
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/cfdi-transform/internal/config"
	"github.com/ginjaninja78/cfdi-transform/internal/converter"
	"github.com/ginjaninja78/cfdi-transform/internal/export"
	"github.com/ginjaninja78/cfdi-transform/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// dryRun decodes and flattens without writing outputs.
var dryRun bool

// filePath is the path to a specific file to process.
var filePath string

// jobName filters processing to a specific job.
var jobName string

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

// processCmd represents the 'process' command.
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process XML documents in the input directory",
	Long: `The process command scans the input directory for XML documents, matches
them to a job by file name, decodes and flattens each one with the job's
profile, and writes one output per job.

Processing is done concurrently. Each file is processed independently, and
errors in one file do not affect the processing of others (unless
continue_on_error is false).

On successful processing:
  - The job output is placed in the output directory (or PostgreSQL table)
  - The original document is moved to the input archive (archive_inputs)
  - A summary report is generated

On error:
  - An error log is created in the output directory
  - The original document remains in the input directory`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runProcess(ctx)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().BoolVar(
		&dryRun,
		"dry-run",
		false,
		"Decode and flatten without writing outputs or archiving",
	)

	processCmd.Flags().StringVar(
		&filePath,
		"file",
		"",
		"Path to a specific file to process",
	)

	processCmd.Flags().StringVar(
		&jobName,
		"job",
		"",
		"Process only files for a specific job",
	)
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// runProcess orchestrates the batch pipeline.
func runProcess(ctx context.Context) error {
	startTime := time.Now()

	// =========================================================================
	// STEP 1: LOAD CONFIGURATION
	// =========================================================================

	mainConfig, err := loadConfig()
	if err != nil {
		return err
	}

	jobs, err := config.LoadJobConfigs(mainConfig.JobsDir)
	if err != nil {
		return fmt.Errorf("failed to load job configs: %w", err)
	}
	if jobName != "" {
		jobs = filterJobs(jobs, jobName)
		if len(jobs) == 0 {
			return fmt.Errorf("no job named %q in %s", jobName, mainConfig.JobsDir)
		}
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no job configurations found in %s", mainConfig.JobsDir)
	}

	registry, err := loadRegistry(mainConfig.ProfilesDir)
	if err != nil {
		return err
	}

	// =========================================================================
	// STEP 2: RESOLVE JOBS
	// =========================================================================

	plans := make([]*converter.Plan, 0, len(jobs))
	needsDB := false
	for _, job := range jobs {
		plan, err := converter.NewPlan(job, mainConfig, registry)
		if err != nil {
			return err
		}
		plans = append(plans, plan)
		needsDB = needsDB || plan.Format == export.FormatPostgres
	}
	slog.Info("jobs loaded", "jobs", len(plans))

	// =========================================================================
	// STEP 3: DISCOVER INPUT FILES
	// =========================================================================

	files := utils.NewFileManager(mainConfig.InputDir, mainConfig.OutputDir, mainConfig.InputArchiveDir)

	var inputFiles []string
	if filePath != "" {
		inputFiles = []string{filePath}
	} else {
		inputFiles, err = files.DiscoverInputFiles(".xml")
		if err != nil {
			return fmt.Errorf("failed to discover input files: %w", err)
		}
	}

	if len(inputFiles) == 0 {
		slog.Info("no XML files found", "dir", mainConfig.InputDir)
		return nil
	}
	slog.Info("files discovered", "count", len(inputFiles))

	// =========================================================================
	// STEP 4: RUN
	// =========================================================================

	conv := converter.New(mainConfig, slog.Default())
	conv.SetDryRun(dryRun)

	if needsDB && !dryRun {
		if mainConfig.DatabaseURL == "" {
			return fmt.Errorf("a postgres job needs database_url or DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, mainConfig.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		conv.SetDatabase(pool)
	}

	report, runErr := conv.Run(ctx, plans, inputFiles)

	// =========================================================================
	// STEP 5: SUMMARY
	// =========================================================================

	endTime := time.Now()
	summary := report.Summary(startTime, endTime)

	for _, res := range report.Results {
		switch {
		case res.Skipped:
			fmt.Printf("  - %s: no matching job\n", filepath.Base(res.FilePath))
		case res.Success:
			fmt.Printf("  ✓ %s [%s] %d row(s)\n", filepath.Base(res.FilePath), res.Job, res.Stats.RowsProduced)
		default:
			fmt.Printf("  ✗ %s: %v\n", filepath.Base(res.FilePath), res.Error)
		}
	}
	for _, out := range report.Outputs {
		if out.Error == nil {
			fmt.Printf("  → %s: %s (%d row(s))\n", out.Job, out.Target, out.Rows)
		}
	}

	fmt.Println("\n=== Processing Complete ===")
	fmt.Printf("Total files:     %d\n", summary.TotalFiles)
	fmt.Printf("Successful:      %d\n", summary.SuccessfulFiles)
	fmt.Printf("Errors:          %d\n", summary.FailedFiles)
	fmt.Printf("Skipped:         %d\n", summary.SkippedFiles)
	fmt.Printf("Time elapsed:    %s\n", endTime.Sub(startTime))

	if dryRun {
		return runErr
	}

	if path, err := utils.WriteSummaryLog(summary, mainConfig.OutputDir); err != nil {
		slog.Warn("failed to write summary", "error", err)
	} else {
		slog.Info("summary written", "path", path)
	}

	if path, err := utils.WriteErrorLog(report.ErrorEntries(endTime), mainConfig.OutputDir); err != nil {
		slog.Warn("failed to write error log", "error", err)
	} else if path != "" {
		fmt.Printf("\nErrors have been logged to %s\n", path)
	}

	return runErr
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// filterJobs keeps the job called name.
func filterJobs(jobs []*config.JobConfig, name string) []*config.JobConfig {
	for _, job := range jobs {
		if job.Name == name {
			return []*config.JobConfig{job}
		}
	}
	return nil
}
