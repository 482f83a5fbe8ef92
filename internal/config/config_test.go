package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMainConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "input_dir: "+filepath.Join(dir, "in")+"\n"+
		"output_dir: "+filepath.Join(dir, "out")+"\n"+
		"profiles_dir: "+filepath.Join(dir, "profiles")+"\n"+
		"jobs_dir: "+filepath.Join(dir, "jobs")+"\n")

	cfg, err := LoadMainConfig(path)
	if err != nil {
		t.Fatalf("LoadMainConfig: %v", err)
	}

	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("log = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", cfg.MaxConcurrency)
	}
	if !cfg.Continue() {
		t.Error("Continue() = false, want true by default")
	}
	if cfg.CSV.DelimiterRune() != ',' {
		t.Errorf("delimiter = %q", cfg.CSV.DelimiterRune())
	}
	if cfg.OutputNameFormat != "{job}_{timestamp}_{uuid}" {
		t.Errorf("OutputNameFormat = %q", cfg.OutputNameFormat)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.RequestTimeout != 60*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	for _, d := range []string{cfg.InputDir, cfg.OutputDir, cfg.ProfilesDir, cfg.JobsDir} {
		if _, err := os.Stat(d); err != nil {
			t.Errorf("directory %s not created: %v", d, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "input_archive")); !os.IsNotExist(err) {
		t.Error("archive dir created without archive_inputs")
	}
}

func TestLoadMainConfigValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "json")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
input_dir: `+filepath.Join(dir, "in")+`
output_dir: `+filepath.Join(dir, "out")+`
profiles_dir: `+filepath.Join(dir, "profiles")+`
jobs_dir: `+filepath.Join(dir, "jobs")+`
input_archive_dir: `+filepath.Join(dir, "archive")+`
archive_inputs: true
log_level: debug
max_concurrency: 1
continue_on_error: false
empty_char: "-"
safe_numerics: true
database_url: postgres://file/db
csv:
  delimiter: ";"
  bom: true
server:
  addr: ":9000"
  request_timeout: 5s
`)

	cfg, err := LoadMainConfig(path)
	if err != nil {
		t.Fatalf("LoadMainConfig: %v", err)
	}

	if cfg.DatabaseURL != "postgres://env/db" {
		t.Errorf("DatabaseURL = %q, want environment override", cfg.DatabaseURL)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Errorf("log = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Continue() {
		t.Error("Continue() = true, want false")
	}
	if cfg.MaxConcurrency != 1 || cfg.EmptyChar != "-" || !cfg.SafeNumerics {
		t.Errorf("processing = %d %q %v", cfg.MaxConcurrency, cfg.EmptyChar, cfg.SafeNumerics)
	}
	if cfg.CSV.DelimiterRune() != ';' || !cfg.CSV.BOM {
		t.Errorf("csv = %+v", cfg.CSV)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if _, err := os.Stat(cfg.InputArchiveDir); err != nil {
		t.Errorf("archive dir not created: %v", err)
	}
}

func TestLoadMainConfigInvalid(t *testing.T) {
	t.Setenv("LOG_FORMAT", "")

	tests := []struct {
		name    string
		content string
	}{
		{"negative concurrency", "max_concurrency: -1\n"},
		{"long delimiter", "csv:\n  delimiter: \"||\"\n"},
		{"log format", "log_format: xml\n"},
		{"bad yaml", "input_dir: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			writeFile(t, path, "input_dir: "+filepath.Join(dir, "in")+"\n"+
				"output_dir: "+filepath.Join(dir, "out")+"\n"+
				"profiles_dir: "+filepath.Join(dir, "p")+"\n"+
				"jobs_dir: "+filepath.Join(dir, "j")+"\n"+tt.content)
			if _, err := LoadMainConfig(path); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadMainConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadJobConfigs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b_pagos.yaml"), `
job_name: pagos
file_matching_patterns: ["pagos_*.xml", "*_pago.xml"]
profile: pagos10
output:
  format: XLSX
  sheet_name: Pagos
`)
	writeFile(t, filepath.Join(dir, "a_nomina.yml"), `
file_matching_patterns: ["*nomina*.xml"]
profile: nomina12
empty_char: ""
safe_numerics: true
`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	jobs, err := LoadJobConfigs(dir)
	if err != nil {
		t.Fatalf("LoadJobConfigs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}

	pagos, nomina := jobs[0], jobs[1]
	if pagos.Name != "pagos" || pagos.Output.Format != "xlsx" || pagos.Output.SheetName != "Pagos" {
		t.Errorf("pagos = %+v", pagos)
	}
	if nomina.Name != "a_nomina" || nomina.Output.Format != "csv" {
		t.Errorf("nomina = %+v", nomina)
	}

	main := &MainConfig{EmptyChar: "-", SafeNumerics: false}
	if got := nomina.ResolveEmptyChar(main); got != "" {
		t.Errorf("ResolveEmptyChar = %q, want job override", got)
	}
	if !nomina.ResolveSafeNumerics(main) {
		t.Error("ResolveSafeNumerics = false, want job override")
	}
	if got := pagos.ResolveEmptyChar(main); got != "-" {
		t.Errorf("ResolveEmptyChar = %q, want main value", got)
	}

	tests := []struct {
		file string
		want string
	}{
		{"/in/pagos_001.xml", "pagos"},
		{"/in/x_pago.xml", "pagos"},
		{"/in/2024_nomina_q1.xml", "a_nomina"},
		{"/in/factura.xml", ""},
	}
	for _, tt := range tests {
		got := ""
		if job := FindMatchingJob(tt.file, jobs); job != nil {
			got = job.Name
		}
		if got != tt.want {
			t.Errorf("FindMatchingJob(%s) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestLoadJobConfigsDuplicateName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.yaml"), "job_name: same\nprofile: cfdi33\n")
	writeFile(t, filepath.Join(dir, "two.yaml"), "job_name: same\nprofile: cfdi33\n")

	if _, err := LoadJobConfigs(dir); err == nil {
		t.Error("expected duplicate name error")
	}
}
