package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/place-resolver/internal/model"
	"github.com/sells-group/place-resolver/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Maintain the durable cache and disambiguation audit log",
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired cache rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("sweep"); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteExpired(ctx)
		if err != nil {
			return eris.Wrap(err, "sweep cache")
		}
		zap.L().Info("cache sweep complete", zap.Int("deleted", n))
		return nil
	},
}

var (
	rejectionsSubject string
	rejectionsKind    string
	rejectionsLimit   int
)

var cacheRejectionsCmd = &cobra.Command{
	Use:   "rejections",
	Short: "List items dropped by the disambiguation validator",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("sweep"); err != nil {
			return err
		}

		filter := store.RejectionFilter{SubjectName: rejectionsSubject, Limit: rejectionsLimit}
		if rejectionsKind != "" {
			kind, err := model.ParseArtifactKind(rejectionsKind)
			if err != nil {
				return err
			}
			filter.Kind = kind
		}

		st, err := openStore(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rejections, err := st.ListRejections(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list rejections")
		}
		return writeJSON(os.Stdout, rejections)
	},
}

func init() {
	cacheRejectionsCmd.Flags().StringVar(&rejectionsSubject, "subject", "", "filter by subject name")
	cacheRejectionsCmd.Flags().StringVar(&rejectionsKind, "kind", "", "filter by artifact kind")
	cacheRejectionsCmd.Flags().IntVar(&rejectionsLimit, "limit", 100, "max records to list")

	cacheCmd.AddCommand(cacheSweepCmd, cacheRejectionsCmd)
	rootCmd.AddCommand(cacheCmd)
}
