// =============================================================================
// CFDI Transform - Transform Command
// =============================================================================
//
// This file defines the 'transform' command, which runs one document through
// a profile and writes the result to stdout or a file. It is the command-line
// counterpart of POST /api/transform/{profile}.
//
// COMMAND USAGE:
//   cfdi-transform transform <profile> <file> [flags]
//
// FLAGS:
//   --format        : csv (default), xlsx, json, yaml, xml
//   --variant       : Schema variants (overrides the profile)
//   --empty-char    : Replacement for absent fields
//   --safe-numerics : Zero-fill absent numeric fields
//   -o, --output    : Output file (default stdout)
//
// =============================================================================

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/cfdi-transform/internal/config"
	"github.com/ginjaninja78/cfdi-transform/internal/converter"
)

var (
	transformFormat   string
	transformVariants []string
	transformEmpty    string
	transformSafe     bool
	transformOutput   string
)

// transformCmd represents the 'transform' command.
var transformCmd = &cobra.Command{
	Use:   "transform <profile> <file>",
	Short: "Transform a single CFDI document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mainConfig, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := loadRegistry(mainConfig.ProfilesDir)
		if err != nil {
			return err
		}

		// An ad hoc job carries the flags through the same plan as batch jobs.
		job := &config.JobConfig{
			Name:    args[0],
			Profile: args[0],
			Output:  config.OutputSettings{Format: transformFormat},
		}
		if cmd.Flags().Changed("variant") {
			job.Variants = transformVariants
		}
		if cmd.Flags().Changed("empty-char") {
			job.EmptyChar = &transformEmpty
		}
		if cmd.Flags().Changed("safe-numerics") {
			job.SafeNumerics = &transformSafe
		}

		plan, err := converter.NewPlan(job, mainConfig, registry)
		if err != nil {
			return err
		}

		conv := converter.New(mainConfig, slog.Default())
		result := conv.ConvertFile(plan, args[1])
		for _, w := range result.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %v\n", w)
		}
		if !result.Success {
			return result.Error
		}

		out, closeOut, err := openOutput(transformOutput)
		if err != nil {
			return err
		}
		if _, err := conv.Encode(out, plan, result); err != nil {
			closeOut()
			return fmt.Errorf("failed to write output: %w", err)
		}
		return closeOut()
	},
}

func init() {
	rootCmd.AddCommand(transformCmd)

	transformCmd.Flags().StringVar(&transformFormat, "format", "csv", "Output format: csv, xlsx, json, yaml, xml")
	transformCmd.Flags().StringSliceVar(&transformVariants, "variant", nil, "Schema variants to enable (overrides the profile)")
	transformCmd.Flags().StringVar(&transformEmpty, "empty-char", "", "Replacement for absent fields")
	transformCmd.Flags().BoolVar(&transformSafe, "safe-numerics", false, "Zero-fill absent numeric fields")
	transformCmd.Flags().StringVarP(&transformOutput, "output", "o", "", "Output file (default stdout)")
}
