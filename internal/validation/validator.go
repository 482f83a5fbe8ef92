// =============================================================================
// CFDI Transform - Validation Engine
// =============================================================================
//
// This module checks a deployment before any document is processed:
//   - Catalogs compile on their own and with each variant
//   - Profiles reference a known catalog, select usable variants and carry
//     a column spec that fits the record shape
//   - Jobs reference a known profile and output format, have valid file
//     patterns and the settings their output needs
//
// ERROR HANDLING:
//   - Errors are collected, not returned at the first problem
//   - Each error names its source file and subject (catalog, profile, job)
//   - Errors can be warnings (the pipeline still runs) or fatal
//
// =============================================================================

package validation

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ginjaninja78/cfdi-transform/internal/catalog"
	"github.com/ginjaninja78/cfdi-transform/internal/config"
	"github.com/ginjaninja78/cfdi-transform/internal/converter"
	"github.com/ginjaninja78/cfdi-transform/internal/export"
	"github.com/ginjaninja78/cfdi-transform/internal/flatten"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation error.
type ValidationError struct {
	// Severity indicates the severity of the error.
	// "error" = fatal, the pipeline must not run
	// "warning" = non-fatal, the pipeline can run
	Severity string

	// Kind is "catalog", "profile" or "job".
	Kind string

	// Subject is the name of the catalog, profile or job.
	Subject string

	// Source is the file the subject was loaded from, if known.
	Source string

	// Rule is the check that was violated.
	Rule string

	// Message is a human-readable error message.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("[%s] %s '%s': %s (%s)",
		strings.ToUpper(e.Severity),
		e.Kind,
		e.Subject,
		e.Message,
		e.Rule,
	)
	if e.Source != "" {
		msg += " in " + e.Source
	}
	return msg
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no fatal errors.
	IsValid bool

	// Errors contains all validation errors (including warnings).
	Errors []*ValidationError

	// ErrorCount is the number of fatal errors.
	ErrorCount int

	// WarningCount is the number of warnings.
	WarningCount int

	CatalogsValidated int
	ProfilesValidated int
	JobsValidated     int
}

func (r *ValidationResult) add(errs []*ValidationError) {
	for _, e := range errs {
		if e.Severity == SeverityWarning {
			r.WarningCount++
		} else {
			r.ErrorCount++
		}
	}
	r.Errors = append(r.Errors, errs...)
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator checks catalogs, profiles and jobs.
type Validator struct {
	main     *config.MainConfig
	registry *catalog.Registry
	options  ValidationOptions
}

// ValidationOptions contains options for validation.
type ValidationOptions struct {
	// TreatWarningsAsErrors makes any warning invalidate the result.
	// Default: false
	TreatWarningsAsErrors bool
}

// NewValidator creates a validator for a main configuration and registry.
func NewValidator(main *config.MainConfig, registry *catalog.Registry) *Validator {
	return NewValidatorWithOptions(main, registry, ValidationOptions{})
}

// NewValidatorWithOptions creates a validator with custom options.
func NewValidatorWithOptions(main *config.MainConfig, registry *catalog.Registry, options ValidationOptions) *Validator {
	return &Validator{main: main, registry: registry, options: options}
}

// ValidateAll checks every registered catalog and profile, then the jobs.
func (v *Validator) ValidateAll(jobs []*config.JobConfig) *ValidationResult {
	result := &ValidationResult{}

	for _, c := range v.registry.Catalogs() {
		result.add(v.ValidateCatalog(c))
		result.CatalogsValidated++
	}
	for _, p := range v.registry.Profiles() {
		result.add(v.ValidateProfile(p))
		result.ProfilesValidated++
	}
	for _, job := range jobs {
		result.add(v.ValidateJob(job))
		result.JobsValidated++
	}
	result.add(v.validateOverlaps(jobs))

	result.IsValid = result.ErrorCount == 0
	if v.options.TreatWarningsAsErrors && result.WarningCount > 0 {
		result.IsValid = false
	}
	return result
}

// ValidateCatalog compiles a catalog without variants and with each variant.
func (v *Validator) ValidateCatalog(c *catalog.Catalog) []*ValidationError {
	var errs []*ValidationError
	fail := func(rule, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Severity: SeverityError,
			Kind:     "catalog",
			Subject:  c.Name,
			Rule:     rule,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if _, err := c.Compile(nil); err != nil {
		fail("compile", "%v", err)
	}
	for _, name := range c.VariantNames() {
		if _, err := c.Compile([]string{name}); err != nil {
			fail("variant", "variant %s: %v", name, err)
		}
	}
	return errs
}

// ValidateProfile checks that a profile resolves, compiles and flattens.
func (v *Validator) ValidateProfile(p *catalog.Profile) []*ValidationError {
	var errs []*ValidationError
	fail := func(rule, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Severity: SeverityError,
			Kind:     "profile",
			Subject:  p.Name,
			Rule:     rule,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	cat, ok := v.registry.Catalog(p.Catalog)
	if !ok {
		fail("catalog", "unknown catalog %q", p.Catalog)
		return errs
	}

	table, err := cat.Compile(p.Variants)
	if err != nil {
		fail("variants", "%v", err)
		return errs
	}

	if len(p.Export.Columns) == 0 {
		fail("columns", "export defines no columns")
		return errs
	}

	spec, err := p.Export.Spec()
	if err != nil {
		fail("columns", "%v", err)
		return errs
	}
	if err := flatten.Validate(table.Shape, spec); err != nil {
		fail("flatten", "%v", err)
	}

	seen := make(map[string]bool)
	for _, h := range spec.Headers() {
		if seen[h] {
			errs = append(errs, &ValidationError{
				Severity: SeverityWarning,
				Kind:     "profile",
				Subject:  p.Name,
				Rule:     "headers",
				Message:  fmt.Sprintf("duplicate header %q", h),
			})
		}
		seen[h] = true
	}

	return errs
}

// ValidateJob checks one job configuration.
func (v *Validator) ValidateJob(job *config.JobConfig) []*ValidationError {
	var errs []*ValidationError
	report := func(severity, rule, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Severity: severity,
			Kind:     "job",
			Subject:  job.Name,
			Source:   job.Source,
			Rule:     rule,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if len(job.FileMatchingPatterns) == 0 {
		report(SeverityWarning, "patterns", "no file_matching_patterns; the job matches nothing")
	}
	for _, pattern := range job.FileMatchingPatterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			report(SeverityError, "patterns", "invalid pattern %q: %v", pattern, err)
		}
	}

	if job.Profile == "" {
		report(SeverityError, "profile", "profile is required")
		return errs
	}

	if _, err := converter.NewPlan(job, v.main, v.registry); err != nil {
		report(SeverityError, "plan", "%v", err)
		return errs
	}

	if job.Output.Format == string(export.FormatPostgres) && v.main.DatabaseURL == "" {
		report(SeverityError, "output", "postgres output requires database_url")
	}

	return errs
}

// validateOverlaps warns about identical patterns in different jobs; the
// first job always wins them.
func (v *Validator) validateOverlaps(jobs []*config.JobConfig) []*ValidationError {
	var errs []*ValidationError
	owner := make(map[string]string)
	for _, job := range jobs {
		for _, pattern := range job.FileMatchingPatterns {
			if first, ok := owner[pattern]; ok && first != job.Name {
				errs = append(errs, &ValidationError{
					Severity: SeverityWarning,
					Kind:     "job",
					Subject:  job.Name,
					Source:   job.Source,
					Rule:     "patterns",
					Message:  fmt.Sprintf("pattern %q is already taken by job %s", pattern, first),
				})
				continue
			}
			owner[pattern] = job.Name
		}
	}
	return errs
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
//
// PARAMETERS:
//   - errors: The validation errors to format.
//
// RETURNS:
//   - A formatted string containing all errors.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder

	fmt.Fprintf(&builder, "Validation completed with %d issue(s):\n\n", len(errors))

	for i, err := range errors {
		fmt.Fprintf(&builder, "%d. %s\n", i+1, err.Error())
	}

	return builder.String()
}
