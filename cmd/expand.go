package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/place-resolver/internal/hierarchy"
)

var expandFlags requestFlags

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Print the fallback hierarchy for a place without querying providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := expandFlags.request()
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, hierarchy.Expand(req.SubjectName, req.Geo, req.ArtifactKind))
	},
}

func init() {
	expandFlags.register(expandCmd)
	rootCmd.AddCommand(expandCmd)
}
