package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"backtest-analytics/services/arrowpipeline"
	"backtest-analytics/services/clickhouse"
	"backtest-analytics/services/config"
	"backtest-analytics/services/dataio"
	"backtest-analytics/services/engine"
	"backtest-analytics/services/logging"
	"backtest-analytics/services/monitoring"
)

const timeFlagLayout = "2006-01-02 15:04:05"

func main() {
	// Flags
	cfgPath := flag.String("config", "", "YAML config file")
	csvPath := flag.String("csv", "", "Bar CSV; if set, skip ClickHouse")
	symbol := flag.String("symbol", "SPY", "Symbol to load from ClickHouse")
	from := flag.String("from", "2024-01-01 00:00:00", "Start UTC (YYYY-MM-DD HH:MM:SS)")
	to := flag.String("to", "2024-02-01 00:00:00", "End UTC (YYYY-MM-DD HH:MM:SS)")
	arrowOut := flag.String("arrow-out", "", "Write session stats as an Arrow IPC stream")
	metricsOut := flag.String("metrics-out", "", "Write Prometheus metrics in text format")
	resample := flag.Duration("resample", 0, "Aggregate bars to this cadence before analysis; 0 keeps the input")
	verbose := flag.Bool("verbose", false, "Print every bar of every session")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := options{
		csvPath:    *csvPath,
		symbol:     *symbol,
		from:       *from,
		to:         *to,
		arrowOut:   *arrowOut,
		metricsOut: *metricsOut,
		resample:   *resample,
		verbose:    *verbose,
	}
	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Fatal("Session analysis failed", zap.Error(err))
	}
}

type options struct {
	csvPath    string
	symbol     string
	from, to   string
	arrowOut   string
	metricsOut string
	resample   time.Duration
	verbose    bool
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *zap.Logger) error {
	ec, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	bars, err := loadBars(ctx, cfg, opts, ec.Session.Location, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded bars: %d\n", len(bars))
	if opts.resample > 0 {
		if bars, err = engine.Resample(bars, opts.resample); err != nil {
			return err
		}
		fmt.Printf("Resampled to %s: %d bars\n", opts.resample, len(bars))
	}

	reg := prometheus.NewRegistry()
	metrics, err := monitoring.New(cfg.Monitoring.Namespace, reg)
	if err != nil {
		return err
	}
	analyzer, err := engine.NewAnalyzer(ec, engine.WithLogger(logger), engine.WithRecorder(metrics))
	if err != nil {
		return err
	}
	report, err := analyzer.Run(ctx, bars)
	if err != nil {
		return err
	}

	printReport(report, opts.verbose)

	if opts.arrowOut != "" {
		if err := writeArrow(cfg.Arrow, opts.arrowOut, report, logger); err != nil {
			return err
		}
		fmt.Printf("Arrow stream: %s\n", opts.arrowOut)
	}
	metricsPath := opts.metricsOut
	if metricsPath == "" {
		metricsPath = cfg.Monitoring.Textfile
	}
	if metricsPath != "" {
		if err := monitoring.WriteTextfile(metricsPath, reg); err != nil {
			return err
		}
	}
	return nil
}

func loadBars(ctx context.Context, cfg *config.Config, opts options, loc *time.Location, logger *zap.Logger) ([]engine.Bar, error) {
	if opts.csvPath != "" {
		f, err := os.Open(opts.csvPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return dataio.ReadBars(f, dataio.BarOptions{Symbol: opts.symbol, Location: loc})
	}

	from, err := time.ParseInLocation(timeFlagLayout, opts.from, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse -from: %w", err)
	}
	to, err := time.ParseInLocation(timeFlagLayout, opts.to, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse -to: %w", err)
	}
	store, err := clickhouse.Open(ctx, cfg.ClickHouse, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.LoadBarsChunked(ctx, opts.symbol, from, to)
}

func writeArrow(ac arrowpipeline.Config, path string, report *engine.Report, logger *zap.Logger) error {
	p, err := arrowpipeline.NewPipeline(ac, logger)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.WriteReport(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printReport(report *engine.Report, verbose bool) {
	fmt.Println("=== Session Analysis Summary ===")
	fmt.Printf("Run: %s  Symbol: %s  Config: %s\n", report.RunID, report.Symbol, report.ConfigHash[:12])

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	labels := percentageLabels(report)
	header := []string{"session", "bars", "open", "close", "high", "low", "slope", "r2"}
	for _, l := range labels {
		header = append(header, l+"%")
	}
	header = append(header, "peaks", "valleys", "dir", "marubozu", "gaps")
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, rep := range report.Sessions {
		stats := rep.Primary()
		if len(stats) == 0 {
			continue
		}
		last := stats[len(stats)-1]
		candle := rep.Candles[len(rep.Candles)-1]
		row := []string{
			rep.Session.ID,
			fmt.Sprint(len(rep.Session.Bars)),
			fmt.Sprintf("%.4f", candle.Open),
			fmt.Sprintf("%.4f", candle.Close),
			fmt.Sprintf("%.4f", last.RunningMax),
			fmt.Sprintf("%.4f", last.RunningMin),
			optional(last.SlopeFromSessionStart),
			optional(last.R2FromSessionStart),
		}
		for _, l := range labels {
			pct := rep.Percentages[l]
			row = append(row, fmt.Sprintf("%.1f", pct[len(pct)-1]))
		}
		row = append(row,
			fmt.Sprint(countMarks(rep.Peaks)),
			fmt.Sprint(countMarks(rep.Valleys)),
			fmt.Sprint(candle.Direction),
			fmt.Sprint(candle.Marubozu),
			fmt.Sprint(len(rep.Gaps)),
		)
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()

	if !verbose {
		return
	}
	for _, rep := range report.Sessions {
		fmt.Printf("\n--- %s ---\n", rep.Session.ID)
		bw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(bw, "time\tvalue\tmax\tmin\tslope_start\tslope_max\tslope_min\tsign\trun_start\tpeak\tvalley")
		for i, st := range rep.Primary() {
			fmt.Fprintf(bw, "%s\t%.4f\t%.4f\t%.4f\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				st.Time.UTC().Format(timeFlagLayout), st.Value, st.RunningMax, st.RunningMin,
				optional(st.SlopeFromSessionStart), optional(st.SlopeFromLastMax), optional(st.SlopeFromLastMin),
				rep.Runs[i].Sign, rep.Runs[i].RunStart,
				optional(rep.Peaks.Marks[i]), optional(rep.Valleys.Marks[i]),
			)
		}
		bw.Flush()
	}
}

func percentageLabels(report *engine.Report) []string {
	if len(report.Sessions) == 0 {
		return nil
	}
	var labels []string
	for l := range report.Sessions[0].Percentages {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

func countMarks(res engine.PeakResult) int {
	n := 0
	for _, m := range res.Marks {
		if m != nil {
			n++
		}
	}
	return n
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.6f", *v)
}
