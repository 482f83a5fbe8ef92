package converter

import (
	"errors"
	"time"

	"github.com/ginjaninja78/cfdi-transform/internal/decoder"
	"github.com/ginjaninja78/cfdi-transform/internal/extract"
	"github.com/ginjaninja78/cfdi-transform/internal/flatten"
	"github.com/ginjaninja78/cfdi-transform/pkg/utils"
)

// Error types used in summaries and error logs.
const (
	ErrorTypeMalformed      = "malformed"
	ErrorTypeSchemaMismatch = "schema_mismatch"
	ErrorTypeInvalidValue   = "invalid_value"
	ErrorTypePrecondition   = "precondition"
	ErrorTypeOther          = "error"
)

// ErrorType classifies a processing error.
func ErrorType(err error) string {
	var (
		malformed *decoder.MalformedInputError
		mismatch  *decoder.SchemaMismatchError
		invalid   *extract.InvalidValueError
		pre       *flatten.PreconditionError
	)
	switch {
	case errors.As(err, &malformed):
		return ErrorTypeMalformed
	case errors.As(err, &mismatch):
		return ErrorTypeSchemaMismatch
	case errors.As(err, &invalid):
		return ErrorTypeInvalidValue
	case errors.As(err, &pre):
		return ErrorTypePrecondition
	}
	return ErrorTypeOther
}

// Failed returns the results that did not succeed and were not skipped.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Success && !res.Skipped {
			out = append(out, res)
		}
	}
	return out
}

// Summary builds the processing summary of the run.
func (r *Report) Summary(start, end time.Time) utils.ProcessingSummary {
	summary := utils.ProcessingSummary{
		StartTime:  start,
		EndTime:    end,
		TotalFiles: len(r.Results),
	}

	for _, res := range r.Results {
		switch {
		case res.Skipped:
			summary.SkippedFiles++
		case res.Success:
			summary.SuccessfulFiles++
			summary.TotalRows += res.Stats.RowsProduced
			summary.ProcessedFiles = append(summary.ProcessedFiles, utils.ProcessedFileInfo{
				InputFile:   res.FilePath,
				Job:         res.Job,
				ArchivePath: res.ArchivePath,
				Rows:        res.Stats.RowsProduced,
				Warnings:    len(res.Warnings),
				ProcessTime: res.Stats.ProcessingTime,
			})
		default:
			summary.FailedFiles++
			msg := "not processed"
			if res.Error != nil {
				msg = res.Error.Error()
			}
			summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
				InputFile:    res.FilePath,
				ErrorMessage: msg,
				ErrorType:    ErrorType(res.Error),
			})
		}
		summary.TotalWarnings += len(res.Warnings)
	}

	for _, out := range r.Outputs {
		summary.Outputs = append(summary.Outputs, utils.OutputInfo{
			Job:    out.Job,
			Format: string(out.Format),
			Target: out.Target,
			Files:  out.Files,
			Rows:   out.Rows,
		})
	}

	return summary
}

// ErrorEntries converts failed results into error log entries.
func (r *Report) ErrorEntries(now time.Time) []utils.ErrorLogEntry {
	var entries []utils.ErrorLogEntry
	for _, res := range r.Failed() {
		if res.Error == nil {
			continue
		}
		entry := utils.ErrorLogEntry{
			Timestamp:    now,
			FileName:     res.FilePath,
			ErrorType:    ErrorType(res.Error),
			ErrorMessage: res.Error.Error(),
		}

		var malformed *decoder.MalformedInputError
		if errors.As(res.Error, &malformed) {
			entry.Line = malformed.Line
			entry.Column = malformed.Column
			entry.Tag = malformed.Tag
		}
		var mismatch *decoder.SchemaMismatchError
		if errors.As(res.Error, &mismatch) {
			entry.Tag = mismatch.Tag
		}
		var invalid *extract.InvalidValueError
		if errors.As(res.Error, &invalid) {
			entry.FieldName = invalid.Field
			entry.FieldValue = invalid.Value
		}

		entries = append(entries, entry)
	}
	return entries
}
