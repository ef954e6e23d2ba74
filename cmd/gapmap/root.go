package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gapmap/internal/app"
	"gapmap/internal/config"
	"gapmap/internal/export"
	"gapmap/internal/geo"
	"gapmap/internal/heatmap"
	"gapmap/internal/logger"
	"gapmap/internal/places"
	"gapmap/internal/utils"
	"gapmap/internal/zone"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// env 子命令共享的配置与日志
type env struct {
	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "gapmap",
		Short:         "Competitor zone clustering, market gap finder and heatmap",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.log = logger.New(cmd.ErrOrStderr(), cfg.LogLevel, "text")
			return nil
		},
	}
	root.AddCommand(newAnalyzeCmd(e), newHeatmapCmd(e), newFetchCmd(e))
	return root
}

type analyzeOptions struct {
	placesFile string
	bounds     string
	threshold  float64
	top        int
	geojson    bool
}

func newAnalyzeCmd(e *env) *cobra.Command {
	o := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Cluster places into competition zones and find market gaps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), e, o, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.placesFile, "places", "-", "Places JSON array file (- for stdin)")
	cmd.Flags().StringVar(&o.bounds, "bounds", "", "Viewport as south,west,north,east (required)")
	cmd.Flags().Float64Var(&o.threshold, "threshold", 0, "Clustering distance in meters (0 uses CLUSTER_THRESHOLD_M)")
	cmd.Flags().IntVar(&o.top, "top", 0, "Maximum gap zones (0 uses GAP_TOP_N)")
	cmd.Flags().BoolVar(&o.geojson, "geojson", false, "Print a GeoJSON FeatureCollection")
	_ = cmd.MarkFlagRequired("bounds")
	return cmd
}

func runAnalyze(ctx context.Context, e *env, o *analyzeOptions, in io.Reader, out io.Writer) error {
	b, err := geo.ParseBounds(o.bounds)
	if err != nil {
		return err
	}
	ps, err := readPlaces(o.placesFile, in)
	if err != nil {
		return err
	}
	rc, closeRedis := openRedis(e)
	defer closeRedis()
	gc, err := app.BuildGeocoding(e.cfg, rc, e.log)
	if err != nil {
		return err
	}
	a, err := app.BuildAnalyzer(e.cfg, gc.Geocoder, e.log)
	if err != nil {
		return err
	}
	top := o.top
	if top <= 0 {
		top = e.cfg.GapTopN
	}
	res, err := a.Analyze(ctx, ps, b, o.threshold, top)
	if err != nil {
		return err
	}
	if o.geojson {
		return writeJSON(out, export.Analysis(res))
	}
	if len(res.Clusters) == 0 {
		e.log.Info("no zones found", "places", len(ps))
	}
	return writeJSON(out, res)
}

type heatmapOptions struct {
	placesFile string
	bounds     string
	mode       string
	cells      int
	geojson    bool
}

func newHeatmapCmd(e *env) *cobra.Command {
	o := &heatmapOptions{}
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Interpolate a competition or opportunity grid over the viewport",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeatmap(o, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.placesFile, "places", "-", "Places JSON array file (- for stdin)")
	cmd.Flags().StringVar(&o.bounds, "bounds", "", "Viewport as south,west,north,east (required)")
	cmd.Flags().StringVar(&o.mode, "mode", "competition", "Weighting mode: competition|opportunity")
	cmd.Flags().IntVar(&o.cells, "cells", 0, "Grid cells per side (0 uses the default)")
	cmd.Flags().BoolVar(&o.geojson, "geojson", false, "Print a GeoJSON FeatureCollection")
	_ = cmd.MarkFlagRequired("bounds")
	return cmd
}

func runHeatmap(o *heatmapOptions, in io.Reader, out io.Writer) error {
	b, err := geo.ParseBounds(o.bounds)
	if err != nil {
		return err
	}
	mode, err := heatmap.ParseMode(o.mode)
	if err != nil {
		return err
	}
	ps, err := readPlaces(o.placesFile, in)
	if err != nil {
		return err
	}
	cfg := heatmap.DefaultGridConfig()
	if o.cells > 0 {
		cfg.CellsPerSide = o.cells
	}
	pts, err := heatmap.BuildGrid(b, ps, mode, cfg)
	if err != nil {
		return err
	}
	cell := heatmap.CellSize(b, cfg)
	if o.geojson {
		return writeJSON(out, export.Heat(pts, cell))
	}
	return writeJSON(out, map[string]any{"mode": mode, "cellSizeMeters": cell, "points": pts})
}

type fetchOptions struct {
	bounds  string
	keyword string
	source  string
	limit   int
}

func newFetchCmd(e *env) *cobra.Command {
	o := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch competitor places for a viewport from online sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := app.BuildSources(e.cfg, e.log)
			if err != nil {
				return err
			}
			return runFetch(cmd.Context(), m, o, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.bounds, "bounds", "", "Viewport as south,west,north,east (required)")
	cmd.Flags().StringVar(&o.keyword, "keyword", "", "Business keyword, e.g. cafe (required)")
	cmd.Flags().StringVar(&o.source, "source", "", "Single source: google|overpass (default all healthy)")
	cmd.Flags().IntVar(&o.limit, "limit", 0, "Maximum places (0 for no limit)")
	_ = cmd.MarkFlagRequired("bounds")
	_ = cmd.MarkFlagRequired("keyword")
	return cmd
}

func runFetch(ctx context.Context, m *places.Manager, o *fetchOptions, out io.Writer) error {
	b, err := geo.ParseBounds(o.bounds)
	if err != nil {
		return err
	}
	q := places.Query{Bounds: b, Keyword: o.keyword, Limit: o.limit}
	var ps []zone.Place
	if o.source == "" {
		ps, err = m.Search(ctx, q)
	} else {
		s, ok := m.Get(o.source)
		if !ok {
			return fmt.Errorf("unknown source %q", o.source)
		}
		ps, err = places.SearchInstrumented(ctx, s, q)
	}
	if err != nil {
		return err
	}
	if ps == nil {
		ps = []zone.Place{}
	}
	return writeJSON(out, ps)
}

// openRedis：未启用时返回 nil；连接异常时缓存按未命中处理
// 约束：命令结束前调用返回的 close
func openRedis(e *env) (*redis.Client, func()) {
	if !e.cfg.RedisEnabled {
		return nil, func() {}
	}
	rc := utils.OpenRedis(e.cfg.Redis.Addr, e.cfg.Redis.Password)
	if rc == nil {
		return nil, func() {}
	}
	return rc, func() { _ = rc.Close() }
}

func readPlaces(path string, stdin io.Reader) ([]zone.Place, error) {
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var ps []zone.Place
	if err := json.NewDecoder(r).Decode(&ps); err != nil {
		return nil, fmt.Errorf("read places: %w", err)
	}
	return ps, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
