// =============================================================================
// CFDI Transform - Schema Command
// =============================================================================
//
// This file defines the 'schema' command, which writes the XSD describing
// the XML record output of a profile.
//
// COMMAND USAGE:
//   cfdi-transform schema <profile> [--variant nomina12] [-o schema.xsd]
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/cfdi-transform/internal/export"
)

var (
	// schemaOutput is the XSD path; stdout when empty.
	schemaOutput string

	// schemaVariants overrides the profile's variants.
	schemaVariants []string
)

// schemaCmd represents the 'schema' command.
var schemaCmd = &cobra.Command{
	Use:   "schema <profile>",
	Short: "Write the XSD of a profile's XML record output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mainConfig, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := loadRegistry(mainConfig.ProfilesDir)
		if err != nil {
			return err
		}
		profile, cat, err := registry.Resolve(args[0])
		if err != nil {
			return err
		}

		variants := profile.Variants
		if cmd.Flags().Changed("variant") {
			variants = schemaVariants
		}
		table, err := cat.Compile(variants)
		if err != nil {
			return fmt.Errorf("profile %s: %w", profile.Name, err)
		}

		out, closeOut, err := openOutput(schemaOutput)
		if err != nil {
			return err
		}
		if _, err := out.Write(export.GenerateXSD(table.Shape, export.DefaultXMLOptions())); err != nil {
			closeOut()
			return fmt.Errorf("failed to write schema: %w", err)
		}
		return closeOut()
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)

	schemaCmd.Flags().StringVarP(&schemaOutput, "output", "o", "", "Schema file (default stdout)")
	schemaCmd.Flags().StringSliceVar(&schemaVariants, "variant", nil, "Schema variants to enable (overrides the profile)")
}
