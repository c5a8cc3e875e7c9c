package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"KeyZones/internal/di"
	"KeyZones/internal/domain/models"
	"KeyZones/internal/usecase"
	"KeyZones/pkg/config"
	applogger "KeyZones/pkg/logger"
)

var (
	configPath string
	startDate  string
	endDate    string
	assetName  string
	tfLabel    string
)

func main() {
	root := &cobra.Command{
		Use:           "keyzones",
		Short:         "Support and resistance zones for BTC, ETH and SOL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	compute := &cobra.Command{
		Use:   "compute",
		Short: "Compute every asset and timeframe once and print the levels",
		RunE:  runCompute,
	}
	compute.Flags().StringVar(&assetName, "asset", "", "compute a single asset (BTC, ETH, SOL); requires --timeframe")
	compute.Flags().StringVar(&tfLabel, "timeframe", "", "compute a single timeframe (5m, 15m, 1h, 4h); requires --asset")
	syncCandles := &cobra.Command{
		Use:   "sync-candles",
		Short: "Export candles from ClickHouse into the detector data directory",
		RunE:  runSyncCandles,
	}
	for _, c := range []*cobra.Command{compute, syncCandles} {
		c.Flags().StringVar(&startDate, "start", "None", "first day, YYYY-MM-DD or None")
		c.Flags().StringVar(&endDate, "end", "None", "last day, YYYY-MM-DD or None")
	}

	root.AddCommand(
		&cobra.Command{Use: "serve", Short: "Run the HTTP and WebSocket server", RunE: runServe},
		compute,
		&cobra.Command{Use: "clear", Short: "Delete every chart artifact", RunE: runClear},
		syncCandles,
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "keyzones:", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(*cobra.Command, []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()
	return app.Run(ctx)
}

func toolkit() (*di.Toolkit, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	// one-shot commands do not expose /metrics
	cfg.Metrics.Enabled = false
	return di.InitializeToolkit(cfg)
}

func runCompute(cmd *cobra.Command, _ []string) error {
	tk, err := toolkit()
	if err != nil {
		return err
	}
	defer tk.Close()

	ctx, stop := signalContext()
	defer stop()

	if assetName != "" || tfLabel != "" {
		w, warnings := models.ParseDateWindow(startDate, endDate, tk.Config.KeyZones.DateLayout)
		for _, msg := range warnings {
			tk.Logger.Warn(msg)
		}
		return computePair(ctx, cmd.OutOrStdout(), tk.Orchestrator, assetName, tfLabel, w)
	}

	m, err := tk.Orchestrator.ComputeAll(ctx, usecase.BatchRequest{RequestID: 1, StartDate: startDate, EndDate: endDate})
	if m == nil {
		return err
	}
	for _, w := range m.Warnings {
		tk.Logger.Warn(w)
	}
	var results []models.ZoneResult
	m.Each(func(r models.ZoneResult) { results = append(results, r) })
	printResults(cmd.OutOrStdout(), results)
	if err != nil {
		return err
	}
	if n := m.FailedCount(); n == m.Len() {
		return fmt.Errorf("all %d pairs failed", n)
	}
	return nil
}

// PairComputer runs the detector for one pair.
type PairComputer interface {
	ComputeOne(ctx context.Context, a models.Asset, tf models.Timeframe, w models.DateWindow) (models.ZoneResult, error)
}

func computePair(ctx context.Context, out io.Writer, pc PairComputer, asset, timeframe string, w models.DateWindow) error {
	if asset == "" || timeframe == "" {
		return errors.New("--asset and --timeframe must be given together")
	}
	a, err := models.ParseAsset(strings.ToUpper(asset))
	if err != nil {
		return err
	}
	tf, err := models.ParseTimeframe(timeframe)
	if err != nil {
		return err
	}

	r, err := pc.ComputeOne(ctx, a, tf, w)
	if err != nil {
		return err
	}
	printResults(out, []models.ZoneResult{r})
	if r.Failed {
		return fmt.Errorf("%s/%s failed: %s", a, tf, errString(r.Err))
	}
	return nil
}

func printResults(out io.Writer, results []models.ZoneResult) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Asset", "Timeframe", "Levels", "Chart"})
	table.SetAutoWrapText(false)
	table.SetRowLine(true)
	failed := 0
	for _, r := range results {
		levels := strings.Join(r.Levels, "\n")
		chart := r.ArtifactPath
		if r.Failed {
			failed++
			levels = "FAILED: " + errString(r.Err)
			chart = "-"
		} else if levels == "" {
			levels = "(no levels)"
		}
		table.Append([]string{r.Asset.Name(), r.Timeframe.Label(), levels, chart})
	}
	table.SetFooter([]string{"", "", "failed " + strconv.Itoa(failed) + "/" + strconv.Itoa(len(results)), ""})
	table.Render()
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}

func runClear(cmd *cobra.Command, _ []string) error {
	tk, err := toolkit()
	if err != nil {
		return err
	}
	defer tk.Close()

	if err := tk.Store.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("clear artifacts: %w", err)
	}
	tk.Logger.Info("artifacts cleared", applogger.String("root", tk.Store.Root()))
	return nil
}

func runSyncCandles(cmd *cobra.Command, _ []string) error {
	tk, err := toolkit()
	if err != nil {
		return err
	}
	defer tk.Close()

	if tk.CandleSync == nil {
		return errors.New("clickhouse is not enabled; set clickhouse.enabled or CLICKHOUSE_HOST")
	}

	w, warnings := models.ParseDateWindow(startDate, endDate, tk.Config.KeyZones.DateLayout)
	for _, msg := range warnings {
		tk.Logger.Warn(msg)
	}

	ctx, stop := signalContext()
	defer stop()

	reports, runErr := tk.CandleSync.Run(ctx, w)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Asset", "Timeframe", "Rows", "File"})
	for _, r := range reports {
		file := r.Path
		if r.Err != nil {
			file = "ERROR: " + r.Err.Error()
		}
		table.Append([]string{r.Asset.Name(), r.Timeframe.Label(), strconv.Itoa(r.Rows), file})
	}
	table.Render()
	return runErr
}
