package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE:  runVersion,
}

var versionJSON bool

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output as JSON")
}

func runVersion(cmd *cobra.Command, args []string) error {
	version := versionInfo.Version
	if version == "" {
		version = "dev"
	}
	commit := versionInfo.Commit
	if commit == "" {
		commit = "none"
	}
	built := versionInfo.BuildDate
	if built == "" {
		built = "unknown"
	}

	name := "trellis"
	if identity := GetAppIdentity(); identity != nil && identity.BinaryName != "" {
		name = identity.BinaryName
	}

	if versionJSON {
		out := struct {
			Version   string `json:"version"`
			Commit    string `json:"commit"`
			BuildDate string `json:"build_date"`
			GoVersion string `json:"go_version"`
		}{version, commit, built, runtime.Version()}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(&out)
	}

	fmt.Printf("%s %s\n", name, version)
	fmt.Printf("  commit: %s\n", commit)
	fmt.Printf("  built:  %s\n", built)
	fmt.Printf("  go:     %s\n", runtime.Version())
	return nil
}
