package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/place-resolver/internal/model"
)

// requestFlags are the flags shared by resolve and expand.
type requestFlags struct {
	subject   string
	kind      string
	local     string
	district  string
	county    string
	region    string
	country   string
	continent string
	anchor    string
	bbox      string
	target    int
	min       int
	max       int
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.subject, "subject", "", "subject name to resolve (required)")
	cmd.Flags().StringVar(&f.kind, "kind", string(model.KindImage), "artifact kind: image, poi, route, text")
	cmd.Flags().StringVar(&f.local, "local", "", "local place name")
	cmd.Flags().StringVar(&f.district, "district", "", "district name")
	cmd.Flags().StringVar(&f.county, "county", "", "county name")
	cmd.Flags().StringVar(&f.region, "region", "", "region or state name")
	cmd.Flags().StringVar(&f.country, "country", "", "country name or ISO code")
	cmd.Flags().StringVar(&f.continent, "continent", "", "continent name")
	cmd.Flags().StringVar(&f.anchor, "anchor", "", "anchor coordinates as lat,lng")
	cmd.Flags().StringVar(&f.bbox, "bbox", "", "bounding box as min_lat,min_lng,max_lat,max_lng")
	_ = cmd.MarkFlagRequired("subject")
}

func (f *requestFlags) registerCounts(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.target, "target", 0, "target item count (default per kind)")
	cmd.Flags().IntVar(&f.min, "min-per-level", 0, "stop once this many items have accumulated (default per kind)")
	cmd.Flags().IntVar(&f.max, "max-per-level", 0, "max items taken from each provider at broader levels (default per kind)")
}

// request builds the resolution request described by the flags.
func (f *requestFlags) request() (model.ResolutionRequest, error) {
	kind, err := model.ParseArtifactKind(f.kind)
	if err != nil {
		return model.ResolutionRequest{}, err
	}
	req := model.ResolutionRequest{
		SubjectName: f.subject,
		Geo: model.Geo{
			Local:     f.local,
			District:  f.district,
			County:    f.county,
			Region:    f.region,
			Country:   f.country,
			Continent: f.continent,
		},
		TargetCount:  f.target,
		MinPerLevel:  f.min,
		MaxPerLevel:  f.max,
		ArtifactKind: kind,
	}
	if f.anchor != "" {
		v, err := parseFloats(f.anchor, 2)
		if err != nil {
			return model.ResolutionRequest{}, eris.Wrap(err, "parse --anchor")
		}
		req.Geo.Anchor = &model.Coordinates{Lat: v[0], Lng: v[1]}
	}
	if f.bbox != "" {
		v, err := parseFloats(f.bbox, 4)
		if err != nil {
			return model.ResolutionRequest{}, eris.Wrap(err, "parse --bbox")
		}
		req.Geo.BBox = &model.BBox{MinLat: v[0], MinLng: v[1], MaxLat: v[2], MaxLng: v[3]}
	}
	return req, nil
}

// parseFloats parses exactly n comma-separated numbers.
func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, eris.Errorf("want %d comma-separated numbers, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "number %d", i+1)
		}
		out[i] = v
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var resolveFlags requestFlags

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve artifacts for one place",
	Example: `  place-resolver resolve --subject Lofthus --local Lofthus --region Vestland --country Norway
  place-resolver resolve --subject "Hotel Ullensvang" --kind poi --country NO --anchor 60.32,6.65`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := resolveFlags.request()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "resolve", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Engine.Resolve(ctx, req)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, res)
	},
}

func init() {
	resolveFlags.register(resolveCmd)
	resolveFlags.registerCounts(resolveCmd)
	rootCmd.AddCommand(resolveCmd)
}
