// =============================================================================
// CFDI Transform - Configuration Module
// =============================================================================
//
// This module loads the main application configuration and the job
// configurations that tell the batch pipeline which profile to apply to
// which input files.
//
// CONFIGURATION FILES:
//   1. Main Config (config.yaml): Global application settings
//   2. Job Configs (jobs/*.yaml): One file per kind of input batch
//
// ENVIRONMENT:
//   DATABASE_URL, LOG_LEVEL and LOG_FORMAT override the matching settings of
//   the main config. The CLI loads a .env file (godotenv) before reading
//   the configuration, so these can live there too.
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
// This is loaded from the main config.yaml file.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is the directory scanned for XML documents.
	// Default: "./input"
	InputDir string `yaml:"input_dir"`

	// OutputDir is where exports, summaries and error logs are written.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// InputArchiveDir receives input files after successful processing
	// when ArchiveInputs is set.
	// Default: "./input_archive"
	InputArchiveDir string `yaml:"input_archive_dir"`

	// ProfilesDir holds user catalogs and profiles (YAML, optional XLSX
	// column templates). They are added to, and may replace, the built-ins.
	// Default: "./profiles"
	ProfilesDir string `yaml:"profiles_dir"`

	// JobsDir holds the job configurations.
	// Default: "./jobs"
	JobsDir string `yaml:"jobs_dir"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat selects the slog handler.
	// Valid values: "text", "json"
	// Default: "text"
	LogFormat string `yaml:"log_format"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputNameFormat defines the format for output file names. The format's
	// extension is appended.
	// Placeholders:
	//   {uuid}      - A random UUID
	//   {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
	//   {job}       - Job name
	//   {profile}   - Profile name
	// Default: "{job}_{timestamp}_{uuid}"
	OutputNameFormat string `yaml:"output_name_format"`

	// CSV contains settings for CSV output.
	CSV CSVSettings `yaml:"csv"`

	// DatabaseURL is the PostgreSQL connection string used by jobs with
	// the "postgres" output format.
	DatabaseURL string `yaml:"database_url"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency is the maximum number of files decoded concurrently.
	// Set to 1 for sequential processing.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`

	// ContinueOnError determines whether to continue processing other files
	// if one file fails.
	// Default: true
	ContinueOnError *bool `yaml:"continue_on_error"`

	// ArchiveInputs moves successfully processed inputs to InputArchiveDir.
	// Default: false
	ArchiveInputs bool `yaml:"archive_inputs"`

	// EmptyChar replaces absent fields at end of scan.
	// Default: "" (absent fields stay empty)
	EmptyChar string `yaml:"empty_char"`

	// SafeNumerics zero-fills absent numeric fields.
	// Default: false
	SafeNumerics bool `yaml:"safe_numerics"`

	// Server contains settings for the HTTP surface.
	Server ServerSettings `yaml:"server"`
}

// CSVSettings contains settings for writing CSV files.
type CSVSettings struct {
	// Delimiter is the single character separating cells.
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// BOM prefixes output with a UTF-8 byte order mark.
	// Default: false
	BOM bool `yaml:"bom"`
}

// ServerSettings contains settings for the HTTP surface.
type ServerSettings struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string `yaml:"addr"`

	// RequestTimeout bounds one transform request.
	// Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxBodyBytes bounds the size of an uploaded document.
	// Default: 32 MiB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Continue reports whether the pipeline keeps going after a failed file.
func (c *MainConfig) Continue() bool {
	return c.ContinueOnError == nil || *c.ContinueOnError
}

// DelimiterRune returns the CSV delimiter as a rune.
func (s CSVSettings) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(s.Delimiter)
	return r
}

// =============================================================================
// JOB CONFIGURATION STRUCTURE
// =============================================================================

// JobConfig tells the pipeline how to transform one kind of input batch.
type JobConfig struct {
	// Name identifies the job in logs and output names.
	// Default: the file name without extension
	Name string `yaml:"job_name"`

	// Description is free text for humans.
	Description string `yaml:"description"`

	// FileMatchingPatterns is a list of glob patterns matched against input
	// file names. The first job with a matching pattern takes the file.
	// Examples:
	//   - "pagos_*.xml"
	//   - "*_nomina_*.xml"
	FileMatchingPatterns []string `yaml:"file_matching_patterns"`

	// Profile names the catalog profile used to decode and flatten.
	Profile string `yaml:"profile"`

	// Variants overrides the profile's variant selection when set.
	Variants []string `yaml:"variants"`

	// Output selects the sink.
	Output OutputSettings `yaml:"output"`

	// EmptyChar and SafeNumerics override the main config when set.
	EmptyChar    *string `yaml:"empty_char"`
	SafeNumerics *bool   `yaml:"safe_numerics"`

	// Source is the file the job was loaded from.
	Source string `yaml:"-"`
}

// OutputSettings selects where a job's rows or records go.
type OutputSettings struct {
	// Format is one of "csv", "xlsx", "postgres", "json", "yaml", "xml".
	// Default: "csv"
	Format string `yaml:"format"`

	// Table is the target table for the "postgres" format
	// (optionally schema qualified).
	Table string `yaml:"table"`

	// SheetName names the sheet of "xlsx" output.
	SheetName string `yaml:"sheet_name"`

	// BatchSize is the number of rows per COPY for "postgres".
	// Default: 5000
	BatchSize int `yaml:"batch_size"`
}

// Matches reports whether the job takes the file at path.
func (j *JobConfig) Matches(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range j.FileMatchingPatterns {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// ResolveEmptyChar returns the job's empty char, falling back to main.
func (j *JobConfig) ResolveEmptyChar(main *MainConfig) string {
	if j.EmptyChar != nil {
		return *j.EmptyChar
	}
	return main.EmptyChar
}

// ResolveSafeNumerics returns the job's safe-numerics flag, falling back to main.
func (j *JobConfig) ResolveSafeNumerics(main *MainConfig) bool {
	if j.SafeNumerics != nil {
		return *j.SafeNumerics
	}
	return main.SafeNumerics
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read, parsed or validated.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config MainConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvironment(&config)
	applyMainConfigDefaults(&config)

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// DefaultMainConfig returns a configuration with every default applied and
// environment overrides honored. It does not touch the filesystem.
func DefaultMainConfig() *MainConfig {
	config := &MainConfig{}
	applyEnvironment(config)
	applyMainConfigDefaults(config)
	return config
}

// applyEnvironment applies environment variable overrides.
func applyEnvironment(config *MainConfig) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		config.LogFormat = v
	}
}

// applyMainConfigDefaults sets default values for any unset configuration options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.InputDir == "" {
		config.InputDir = "./input"
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.InputArchiveDir == "" {
		config.InputArchiveDir = "./input_archive"
	}
	if config.ProfilesDir == "" {
		config.ProfilesDir = "./profiles"
	}
	if config.JobsDir == "" {
		config.JobsDir = "./jobs"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "text"
	}
	if config.OutputNameFormat == "" {
		config.OutputNameFormat = "{job}_{timestamp}_{uuid}"
	}
	if config.CSV.Delimiter == "" {
		config.CSV.Delimiter = ","
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 4
	}
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.RequestTimeout == 0 {
		config.Server.RequestTimeout = 60 * time.Second
	}
	if config.Server.MaxBodyBytes == 0 {
		config.Server.MaxBodyBytes = 32 << 20
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 15 * time.Second
	}
}

// validateMainConfig validates the main configuration and creates the
// working directories.
func validateMainConfig(config *MainConfig) error {
	if config.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", config.MaxConcurrency)
	}
	if utf8.RuneCountInString(config.CSV.Delimiter) != 1 {
		return fmt.Errorf("csv.delimiter must be a single character, got %q", config.CSV.Delimiter)
	}
	switch strings.ToLower(config.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", config.LogFormat)
	}

	dirs := []string{
		config.InputDir,
		config.OutputDir,
		config.ProfilesDir,
		config.JobsDir,
	}
	if config.ArchiveInputs {
		dirs = append(dirs, config.InputArchiveDir)
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// LoadJobConfigs loads all job configurations from a directory, in file
// name order.
//
// PARAMETERS:
//   - jobsDir: The directory containing job configuration files.
//
// RETURNS:
//   - The job configurations.
//   - An error if the directory cannot be read, a file cannot be parsed,
//     or two jobs share a name.
func LoadJobConfigs(jobsDir string) ([]*JobConfig, error) {
	files, err := filepath.Glob(filepath.Join(jobsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list job files: %w", err)
	}

	ymlFiles, err := filepath.Glob(filepath.Join(jobsDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list job files: %w", err)
	}
	files = append(files, ymlFiles...)

	var jobs []*JobConfig
	seen := make(map[string]string)

	for _, file := range files {
		job, err := loadJobConfig(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		if prev, ok := seen[job.Name]; ok {
			return nil, fmt.Errorf("job %q defined in both %s and %s", job.Name, prev, file)
		}
		seen[job.Name] = file
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// loadJobConfig loads a single job configuration file.
func loadJobConfig(filePath string) (*JobConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var job JobConfig
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	job.Source = filePath

	applyJobConfigDefaults(&job)

	return &job, nil
}

// applyJobConfigDefaults sets default values for a job configuration.
func applyJobConfigDefaults(job *JobConfig) {
	if job.Name == "" {
		base := filepath.Base(job.Source)
		job.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if job.Output.Format == "" {
		job.Output.Format = "csv"
	}
	job.Output.Format = strings.ToLower(job.Output.Format)
}

// FindMatchingJob returns the first job taking the file at path, or nil.
func FindMatchingJob(path string, jobs []*JobConfig) *JobConfig {
	for _, job := range jobs {
		if job.Matches(path) {
			return job
		}
	}
	return nil
}
