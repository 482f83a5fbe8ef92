// =============================================================================
// CFDI Transform - Template Command
// =============================================================================
//
// This file defines the 'template' command, which writes a profile's column
// specification as an XLSX template. The template can be edited and placed
// in the profiles directory next to a profile that names it.
//
// COMMAND USAGE:
//   cfdi-transform template <profile> [-o pagos10.xlsx]
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/cfdi-transform/internal/catalog"
)

// templateOutput is the template file path.
var templateOutput string

// templateCmd represents the 'template' command.
var templateCmd = &cobra.Command{
	Use:   "template <profile>",
	Short: "Write a profile's columns as an XLSX template",
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
		profile, _, err := registry.Resolve(args[0])
		if err != nil {
			return err
		}

		path := templateOutput
		if path == "" {
			path = profile.Name + ".xlsx"
		}
		out, closeOut, err := openOutput(path)
		if err != nil {
			return err
		}
		if err := catalog.WriteTemplate(out, profile.Export); err != nil {
			closeOut()
			return fmt.Errorf("failed to write template: %w", err)
		}
		if err := closeOut(); err != nil {
			return err
		}

		fmt.Printf("Template for %s written to %s (%d columns)\n", profile.Name, path, len(profile.Export.Columns))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templateCmd)

	templateCmd.Flags().StringVarP(
		&templateOutput,
		"output",
		"o",
		"",
		"Template file (default <profile>.xlsx)",
	)
}
