// =============================================================================
// CFDI Transform - Main Entry Point
// =============================================================================
//
// This is the main entry point for the CFDI Transform CLI application.
// It initializes the Cobra CLI framework and delegates command execution to
// the cmd package.
//
// USAGE:
//   cfdi-transform process     - Process all XML documents in the input directory
//   cfdi-transform transform   - Transform one document
//   cfdi-transform serve       - Start the HTTP transform server
//   cfdi-transform validate    - Validate configuration, jobs and profiles
//   cfdi-transform template    - Write a profile's XLSX column template
//   cfdi-transform schema      - Write the XSD of a profile's XML output
//   cfdi-transform version     - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Decoding, flattening, export and the batch pipeline
//   - pkg/           : Shared file utilities
//   - configs/       : Example main and job configurations
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/cfdi-transform/cmd"
)

func main() {
	cmd.Execute()
}
