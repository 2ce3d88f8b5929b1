package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/place-resolver/internal/model"
)

var (
	batchFile        string
	batchLimit       int
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve a YAML file of requests and print one JSON line per request",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reqs, err := loadBatchFile(batchFile)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "resolve", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}
		_, err = processBatch(ctx, reqs, batchLimit, concurrency, os.Stdout, env.Engine.Resolve)
		return err
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "YAML file with a top-level requests list (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of requests to process (0 = all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent resolutions (default from config)")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

// batchFileDoc is the layout of a batch request file.
type batchFileDoc struct {
	Requests []model.ResolutionRequest `yaml:"requests"`
}

// loadBatchFile reads the requests from a YAML batch file.
func loadBatchFile(path string) ([]model.ResolutionRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read batch file")
	}
	var doc batchFileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "parse batch file %s", path)
	}
	return doc.Requests, nil
}

// resolveFunc is the callback signature for resolving one request.
type resolveFunc func(ctx context.Context, req model.ResolutionRequest) (*model.ResolutionResult, error)

// batchLine is one line of batch output.
type batchLine struct {
	Index   int                     `json:"index"`
	Subject string                  `json:"subject_name"`
	Kind    model.ArtifactKind      `json:"artifact_kind"`
	Result  *model.ResolutionResult `json:"result,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// batchSummary counts the outcomes of a batch.
type batchSummary struct {
	Succeeded  int64
	Sufficient int64
	Failed     int64
}

// processBatch applies limit, then resolves requests concurrently and writes
// one JSON line per request to w in completion order. A failed request is
// reported on its line and does not abort the batch.
func processBatch(ctx context.Context, reqs []model.ResolutionRequest, limit, concurrency int, w io.Writer, resolve resolveFunc) (batchSummary, error) {
	if len(reqs) == 0 {
		zap.L().Info("no requests in batch")
		return batchSummary{}, nil
	}
	if limit > 0 && len(reqs) > limit {
		reqs = reqs[:limit]
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("requests", len(reqs)),
		zap.Int("concurrency", concurrency),
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		mu                            sync.Mutex
		enc                           = json.NewEncoder(w)
		succeeded, sufficient, failed atomic.Int64
	)

	for i, req := range reqs {
		g.Go(func() error {
			line := batchLine{Index: i, Subject: req.SubjectName, Kind: req.ArtifactKind}

			res, err := resolve(gctx, req)
			if err != nil {
				failed.Add(1)
				line.Error = err.Error()
				zap.L().Error("resolution failed",
					zap.Int("index", i),
					zap.String("subject", req.SubjectName),
					zap.Error(err),
				)
			} else {
				succeeded.Add(1)
				if res.Sufficient {
					sufficient.Add(1)
				}
				line.Result = res
			}

			mu.Lock()
			defer mu.Unlock()
			return eris.Wrap(enc.Encode(line), "write batch output")
		})
	}

	err := g.Wait()
	summary := batchSummary{
		Succeeded:  succeeded.Load(),
		Sufficient: sufficient.Load(),
		Failed:     failed.Load(),
	}
	zap.L().Info("batch complete",
		zap.Int64("succeeded", summary.Succeeded),
		zap.Int64("sufficient", summary.Sufficient),
		zap.Int64("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary, err
}
