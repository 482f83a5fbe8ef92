// =============================================================================
// CFDI Transform - Converter Module
// =============================================================================
//
// This module contains the batch conversion logic. It orchestrates the
// pipeline for a whole run, from input discovery results to exported rows.
//
// CONVERSION PIPELINE:
//   1. Resolve each job into a Plan (profile, catalog, variants, columns)
//   2. Match every input file to the first job whose patterns take it
//   3. Decode and flatten matched files concurrently
//   4. Write one output per job, rows in discovery order
//   5. Archive the inputs whose rows were written
//
// CONCURRENCY:
//   Files are decoded by an errgroup bounded by max_concurrency. Every file
//   gets its own Decoder, so no decoding state is shared. A failed file
//   becomes a failed Result; unless continue_on_error is off, the other
//   files are unaffected.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/cfdi-transform/internal/catalog"
	"github.com/ginjaninja78/cfdi-transform/internal/config"
	"github.com/ginjaninja78/cfdi-transform/internal/decoder"
	"github.com/ginjaninja78/cfdi-transform/internal/export"
	"github.com/ginjaninja78/cfdi-transform/internal/flatten"
	"github.com/ginjaninja78/cfdi-transform/internal/record"
	"github.com/ginjaninja78/cfdi-transform/pkg/utils"
)

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of processing a single file.
type Result struct {
	// FilePath is the path to the input file that was processed.
	FilePath string

	// Job is the name of the job that took the file. Empty when skipped.
	Job string

	// Skipped is set when no job matches the file.
	Skipped bool

	// Success indicates whether the file was decoded, flattened and written.
	Success bool

	// Error contains the error if processing failed.
	Error error

	// Record is the decoded record. Nil if decoding failed.
	Record *record.Record

	// Rows are the flat rows for tabular outputs.
	Rows []flatten.Row

	// Warnings are the non-fatal region warnings raised while decoding.
	Warnings []*decoder.UnrecognizedRegionWarning

	// ArchivePath is where the input was moved, if it was archived.
	ArchivePath string

	// Stats contains processing statistics.
	Stats ProcessingStats
}

// ProcessingStats contains statistics about the processing.
type ProcessingStats struct {
	// RowsProduced is the number of flat rows (or records) produced.
	RowsProduced int

	// ProcessingTime is the time taken to decode and flatten the file.
	ProcessingTime time.Duration
}

// Output describes the export written for one job.
type Output struct {
	Job    string
	Format export.Format

	// Target is the output file, or the table for postgres.
	Target string

	Files int
	Rows  int
	Error error
}

// Report is the outcome of a run.
type Report struct {
	Results []Result
	Outputs []Output
}

// =============================================================================
// PLAN
// =============================================================================

// Plan is a job resolved against the profile registry.
type Plan struct {
	Job     *config.JobConfig
	Profile *catalog.Profile
	Catalog *catalog.Catalog
	Format  export.Format
	Spec    flatten.Spec
	Options decoder.Options
}

// NewPlan resolves a job. It compiles the catalog for the selected variants
// and validates the column spec against the resulting shape, so a broken
// job fails before any input is read.
func NewPlan(job *config.JobConfig, main *config.MainConfig, registry *catalog.Registry) (*Plan, error) {
	profile, cat, err := registry.Resolve(job.Profile)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}

	format, err := export.ParseFormat(job.Output.Format)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}
	if format == export.FormatPostgres && job.Output.Table == "" {
		return nil, fmt.Errorf("job %s: postgres output requires output.table", job.Name)
	}

	variants := job.Variants
	if len(variants) == 0 {
		variants = profile.Variants
	}

	table, err := cat.Compile(variants)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}

	spec, err := profile.Export.Spec()
	if err != nil {
		return nil, fmt.Errorf("job %s: profile %s: %w", job.Name, profile.Name, err)
	}
	emptyChar := job.ResolveEmptyChar(main)
	spec = spec.WithPlaceholder(emptyChar)
	if format.Tabular() {
		if err := flatten.Validate(table.Shape, spec); err != nil {
			return nil, fmt.Errorf("job %s: profile %s: %w", job.Name, profile.Name, err)
		}
	}

	return &Plan{
		Job:     job,
		Profile: profile,
		Catalog: cat,
		Format:  format,
		Spec:    spec,
		Options: decoder.Options{
			EmptyChar:    emptyChar,
			SafeNumerics: job.ResolveSafeNumerics(main),
			Variants:     variants,
		},
	}, nil
}

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Converter runs the batch pipeline.
type Converter struct {
	// main is the main application configuration.
	main *config.MainConfig

	// files handles archival.
	files *utils.FileManager

	// db receives postgres outputs. Nil when no database is configured.
	db export.Copier

	// dryRun stops after decoding: nothing is written or archived.
	dryRun bool

	logger *slog.Logger
}

// New creates a new Converter.
//
// PARAMETERS:
//   - main: The main application configuration.
//   - logger: Destination for progress logs. Nil uses slog.Default().
//
// RETURNS:
//   - A new Converter instance.
func New(main *config.MainConfig, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		main:   main,
		files:  utils.NewFileManager(main.InputDir, main.OutputDir, main.InputArchiveDir),
		logger: logger,
	}
}

// SetDatabase sets the destination of postgres outputs.
func (c *Converter) SetDatabase(db export.Copier) {
	c.db = db
}

// SetDryRun makes Run stop after decoding and flattening.
func (c *Converter) SetDryRun(dryRun bool) {
	c.dryRun = dryRun
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run processes files with the given plans.
//
// PARAMETERS:
//   - ctx: Cancels pending files and database writes.
//   - plans: Resolved jobs, in matching priority order.
//   - files: Input files, in discovery order.
//
// RETURNS:
//   - The report. It is returned even when err is not nil.
//   - An error if continue_on_error is off and a file failed, or ctx ended.
func (c *Converter) Run(ctx context.Context, plans []*Plan, files []string) (*Report, error) {
	report := &Report{Results: make([]Result, len(files))}

	// =========================================================================
	// STEP 1: DECODE AND FLATTEN CONCURRENTLY
	// =========================================================================

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.main.MaxConcurrency)

	for i, path := range files {
		i, path := i, path
		plan := matchPlan(path, plans)
		if plan == nil {
			c.logger.Warn("no job matches file", "file", path)
			report.Results[i] = Result{FilePath: path, Skipped: true}
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				report.Results[i] = Result{FilePath: path, Job: plan.Job.Name, Error: err}
				return nil
			}
			report.Results[i] = c.ConvertFile(plan, path)
			if err := report.Results[i].Error; err != nil && !c.main.Continue() {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if c.dryRun {
		return report, ctx.Err()
	}

	// =========================================================================
	// STEP 2: WRITE ONE OUTPUT PER JOB
	// =========================================================================

	for _, plan := range plans {
		var indexes []int
		for i, res := range report.Results {
			if res.Success && res.Job == plan.Job.Name {
				indexes = append(indexes, i)
			}
		}
		if len(indexes) == 0 {
			continue
		}

		out := c.writeOutput(ctx, plan, report.Results, indexes)
		report.Outputs = append(report.Outputs, out)

		if out.Error != nil {
			c.logger.Error("failed to write output", "job", plan.Job.Name, "error", out.Error)
			for _, i := range indexes {
				report.Results[i].Success = false
				report.Results[i].Error = fmt.Errorf("failed to write output: %w", out.Error)
			}
			continue
		}
		c.logger.Info("output written", "job", plan.Job.Name, "format", string(out.Format), "target", out.Target, "files", out.Files, "rows", out.Rows)
	}

	// =========================================================================
	// STEP 3: ARCHIVE INPUTS
	// =========================================================================

	if c.main.ArchiveInputs {
		for i := range report.Results {
			res := &report.Results[i]
			if !res.Success {
				continue
			}
			archived, err := c.files.ArchiveInputFile(res.FilePath)
			if err != nil {
				c.logger.Warn("failed to archive input", "file", res.FilePath, "error", err)
				continue
			}
			res.ArchivePath = archived
		}
	}

	return report, ctx.Err()
}

// ConvertFile decodes and flattens one file. It never panics on bad input;
// every failure is reported through Result.Error.
func (c *Converter) ConvertFile(plan *Plan, path string) Result {
	start := time.Now()
	result := Result{FilePath: path, Job: plan.Job.Name}
	log := c.logger.With("file", path, "job", plan.Job.Name)

	opts := plan.Options
	opts.Logger = log
	dec, err := decoder.New(plan.Catalog, opts)
	if err != nil {
		result.Error = err
		return result
	}

	f, err := os.Open(path)
	if err != nil {
		result.Error = fmt.Errorf("failed to open input: %w", err)
		return result
	}
	defer f.Close()

	rec, err := dec.Decode(f)
	result.Warnings = dec.Warnings()
	for _, w := range result.Warnings {
		log.Warn("unrecognized region", "kind", w.Kind, "variant", w.Variant, "line", w.Line)
	}
	if err != nil {
		result.Error = err
		log.Error("failed to decode", "error", err)
		return result
	}
	result.Record = rec

	if plan.Format.Tabular() {
		rows, err := flatten.Flatten(rec, plan.Spec)
		if err != nil {
			result.Error = err
			log.Error("failed to flatten", "error", err)
			return result
		}
		result.Rows = rows
		result.Stats.RowsProduced = len(rows)
	} else {
		result.Stats.RowsProduced = 1
	}

	result.Success = true
	result.Stats.ProcessingTime = time.Since(start)
	log.Info("file transformed", "rows", result.Stats.RowsProduced, "duration", result.Stats.ProcessingTime)

	return result
}

// =============================================================================
// OUTPUT
// =============================================================================

// writeOutput writes the results at indexes to the job's sink.
func (c *Converter) writeOutput(ctx context.Context, plan *Plan, results []Result, indexes []int) Output {
	out := Output{Job: plan.Job.Name, Format: plan.Format, Files: len(indexes)}

	if plan.Format == export.FormatPostgres {
		out.Target = plan.Job.Output.Table
		if c.db == nil {
			out.Error = errors.New("postgres output requires database_url")
			return out
		}
		pw, err := export.NewPostgresWriter(ctx, c.db, plan.Job.Output.Table, plan.Job.Output.BatchSize)
		if err != nil {
			out.Error = err
			return out
		}
		out.Rows, out.Error = writeRows(pw, plan.Spec.Headers(), results, indexes)
		return out
	}

	name := utils.GenerateOutputFileName(c.main.OutputNameFormat, plan.Format.Extension(), map[string]string{
		"job":     plan.Job.Name,
		"profile": plan.Profile.Name,
	})
	out.Target = filepath.Join(c.main.OutputDir, name)

	f, err := os.Create(out.Target)
	if err != nil {
		out.Error = fmt.Errorf("failed to create output: %w", err)
		return out
	}

	out.Rows, out.Error = c.encode(f, plan, results, indexes)

	if err := f.Close(); err != nil && out.Error == nil {
		out.Error = fmt.Errorf("failed to close output: %w", err)
	}
	return out
}

// Encode writes successful results to w in the plan's file format and
// returns the number of rows (or records) written. It is the single-document
// counterpart of the batch output step.
func (c *Converter) Encode(w io.Writer, plan *Plan, results ...Result) (int, error) {
	if plan.Format == export.FormatPostgres {
		return 0, errors.New("postgres output cannot be written to a stream")
	}
	var indexes []int
	for i, res := range results {
		if res.Success {
			indexes = append(indexes, i)
		}
	}
	return c.encode(w, plan, results, indexes)
}

func (c *Converter) encode(w io.Writer, plan *Plan, results []Result, indexes []int) (int, error) {
	opts := export.Options{
		Delimiter: c.main.CSV.DelimiterRune(),
		BOM:       c.main.CSV.BOM,
		SheetName: plan.Job.Output.SheetName,
	}

	if plan.Format.Tabular() {
		rw, err := export.NewRowWriter(plan.Format, w, opts)
		if err != nil {
			return 0, err
		}
		return writeRows(rw, plan.Spec.Headers(), results, indexes)
	}

	rw, err := export.NewRecordWriter(plan.Format, w, opts)
	if err != nil {
		return 0, err
	}
	return writeRecords(rw, results, indexes)
}

func writeRows(rw export.RowWriter, headers []string, results []Result, indexes []int) (int, error) {
	n := 0
	if err := rw.WriteHeader(headers); err != nil {
		rw.Close()
		return n, err
	}
	for _, i := range indexes {
		for _, row := range results[i].Rows {
			if err := rw.WriteRow(row); err != nil {
				rw.Close()
				return n, err
			}
			n++
		}
	}
	return n, rw.Close()
}

func writeRecords(rw export.RecordWriter, results []Result, indexes []int) (int, error) {
	n := 0
	for _, i := range indexes {
		if err := rw.WriteRecord(results[i].Record); err != nil {
			rw.Close()
			return n, err
		}
		n++
	}
	return n, rw.Close()
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// matchPlan returns the first plan whose job takes the file.
func matchPlan(path string, plans []*Plan) *Plan {
	for _, plan := range plans {
		if plan.Job.Matches(path) {
			return plan
		}
	}
	return nil
}
