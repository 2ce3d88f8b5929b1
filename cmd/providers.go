package main

import (
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/place-resolver/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the configured providers with their priority and throttle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := provider.Build(cfg.Providers, &http.Client{})
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, reg.Health())
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
