// =============================================================================
// CFDI Transform - Validate Command
// =============================================================================
//
// This file defines the 'validate' command. It checks the main configuration,
// every job, every catalog and every profile without touching any input.
//
// COMMAND USAGE:
//   cfdi-transform validate [--strict]
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/cfdi-transform/internal/config"
	"github.com/ginjaninja78/cfdi-transform/internal/validation"
)

// strict makes warnings fail validation.
var strict bool

// validateCmd represents the 'validate' command.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration, jobs and profiles",
	Long: `Validate loads the main configuration, the job configurations and the
catalog profiles, and reports every problem found:

  - catalogs that do not compile (alone or with each variant)
  - profiles whose columns do not fit the catalog's record shape
  - jobs with unknown profiles, formats or invalid file patterns
  - jobs whose file patterns overlap

Warnings do not fail validation unless --strict is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate()
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(
		&strict,
		"strict",
		false,
		"Treat warnings as errors",
	)
}

func runValidate() error {
	mainConfig, err := loadConfig()
	if err != nil {
		return err
	}

	jobs, err := config.LoadJobConfigs(mainConfig.JobsDir)
	if err != nil {
		return fmt.Errorf("failed to load job configs: %w", err)
	}

	registry, err := loadRegistry(mainConfig.ProfilesDir)
	if err != nil {
		return err
	}

	validator := validation.NewValidatorWithOptions(mainConfig, registry, validation.ValidationOptions{
		TreatWarningsAsErrors: strict,
	})
	result := validator.ValidateAll(jobs)

	fmt.Printf("Catalogs: %d  Profiles: %d  Jobs: %d\n",
		result.CatalogsValidated, result.ProfilesValidated, result.JobsValidated)

	if len(result.Errors) > 0 {
		fmt.Println()
		fmt.Print(validation.FormatErrors(result.Errors))
	}

	if !result.IsValid {
		return fmt.Errorf("validation failed with %d error(s)", result.ErrorCount)
	}

	fmt.Println("\n✓ Configuration is valid")
	return nil
}
