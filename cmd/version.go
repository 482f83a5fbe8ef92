// =============================================================================
// CFDI Transform - Version Command
// =============================================================================
//
// This file defines the 'version' command, which displays the application
// version and build information.
//
// COMMAND USAGE:
//   cfdi-transform version
//
// OUTPUT:
//   CFDI Transform
//   Version:    1.0.0
//   Build Date: 2026-01-01
//   Go Version: go1.22.0
//   Catalogs:   cfdi33
//
// =============================================================================

package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/cfdi-transform/internal/catalog"
)

// =============================================================================
// VERSION INFORMATION
// =============================================================================
// These variables are set at build time using ldflags.
// Example build command:
//   go build -ldflags "-X 'github.com/ginjaninja78/cfdi-transform/cmd.Version=1.0.0'"

// Version is the application version.
var Version = "1.0.0"

// BuildDate is the date the application was built.
var BuildDate = "unknown"

// =============================================================================
// VERSION COMMAND DEFINITION
// =============================================================================

// versionCmd represents the 'version' command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the application version",
	Long:  `Display the application version, build date, Go runtime version and built-in catalogs.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("CFDI Transform")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Build Date: %s\n", BuildDate)
		fmt.Printf("Go Version: %s\n", runtime.Version())

		if registry, err := catalog.Builtin(); err == nil {
			var names []string
			for _, c := range registry.Catalogs() {
				names = append(names, c.Name)
			}
			fmt.Printf("Catalogs:   %s\n", strings.Join(names, ", "))
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
