package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"backtest-analytics/services/arrowpipeline"
	"backtest-analytics/services/clickhouse"
	"backtest-analytics/services/config"
	"backtest-analytics/services/dataio"
	"backtest-analytics/services/logging"
	"backtest-analytics/services/monitoring"
	"backtest-analytics/services/reconcile"
)

func main() {
	// Flags
	cfgPath := flag.String("config", "", "YAML config file")
	ordersPath := flag.String("orders", "", "Order log CSV")
	runID := flag.String("run", "", "Order log run id stored in ClickHouse; used when -orders is empty")
	symbol := flag.String("symbol", "", "Symbol for order logs without a symbol column")
	outCSV := flag.String("out", "./trades.csv", "Trades CSV output path")
	anomaliesCSV := flag.String("anomalies-out", "", "Anomalies CSV output path")
	arrowOut := flag.String("arrow-out", "", "Write trades as an Arrow IPC stream")
	chHTTP := flag.String("ch-http", "", "ClickHouse HTTP URL to ship trades to; empty disables")
	metricsOut := flag.String("metrics-out", "", "Write Prometheus metrics in text format")
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

	if *symbol != "" {
		cfg.Reconcile.Symbol = *symbol
	}
	opts := options{
		ordersPath:   *ordersPath,
		runID:        *runID,
		outCSV:       *outCSV,
		anomaliesCSV: *anomaliesCSV,
		arrowOut:     *arrowOut,
		chHTTP:       *chHTTP,
		metricsOut:   *metricsOut,
	}
	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Fatal("Reconciliation failed", zap.Error(err))
	}
}

type options struct {
	ordersPath   string
	runID        string
	outCSV       string
	anomaliesCSV string
	arrowOut     string
	chHTTP       string
	metricsOut   string
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *zap.Logger) error {
	log, err := loadEvents(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded order events: %d (rejected %d)\n", len(log.Events), len(log.Rejected))

	reg := prometheus.NewRegistry()
	metrics, err := monitoring.New(cfg.Monitoring.Namespace, reg)
	if err != nil {
		return err
	}
	metrics.EventsRejected(len(log.Rejected))

	res, err := reconcile.Reconcile(log, reconcile.WithLogger(logger), reconcile.WithRecorder(metrics))
	if err != nil {
		return err
	}

	if err := writeFile(opts.outCSV, func(f *os.File) error { return dataio.WriteTrades(f, res.Trades) }); err != nil {
		return err
	}
	if opts.anomaliesCSV != "" {
		if err := writeFile(opts.anomaliesCSV, func(f *os.File) error { return dataio.WriteAnomalies(f, res.Anomalies) }); err != nil {
			return err
		}
	}
	if opts.arrowOut != "" {
		p, err := arrowpipeline.NewPipeline(cfg.Arrow, logger)
		if err != nil {
			return err
		}
		if err := writeFile(opts.arrowOut, func(f *os.File) error { return p.WriteTrades(f, res.Trades) }); err != nil {
			return err
		}
	}
	if opts.chHTTP != "" {
		if err := shipTrades(ctx, cfg, opts, res.Trades); err != nil {
			return err
		}
	}

	printResult(res)

	metricsPath := opts.metricsOut
	if metricsPath == "" {
		metricsPath = cfg.Monitoring.Textfile
	}
	if metricsPath != "" {
		return monitoring.WriteTextfile(metricsPath, reg)
	}
	return nil
}

func loadEvents(ctx context.Context, cfg *config.Config, opts options, logger *zap.Logger) (*reconcile.EventLog, error) {
	if opts.ordersPath != "" {
		f, err := os.Open(opts.ordersPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return dataio.ReadOrderEvents(f, dataio.EventOptions{
			Symbol:   cfg.Reconcile.Symbol,
			Location: cfg.ReconcileLocation(),
		})
	}
	if opts.runID == "" {
		return nil, fmt.Errorf("one of -orders or -run is required")
	}
	store, err := clickhouse.Open(ctx, cfg.ClickHouse, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	log, err := store.LoadOrderEvents(ctx, opts.runID)
	if err != nil {
		return nil, err
	}
	if log.Symbol == "" {
		log.Symbol = cfg.Reconcile.Symbol
	}
	return log, nil
}

func shipTrades(ctx context.Context, cfg *config.Config, opts options, trades []reconcile.Trade) error {
	runID := opts.runID
	if runID == "" {
		runID = uuid.New().String()
	}
	client := clickhouse.NewBatchClient(opts.chHTTP, cfg.ClickHouse.Database+".trades",
		cfg.ClickHouse.Username, cfg.ClickHouse.Password, cfg.ClickHouse.BatchSize)
	for _, t := range trades {
		if err := client.AddTrade(ctx, clickhouse.NewTradeRow(runID, t)); err != nil {
			return err
		}
	}
	if err := client.Close(ctx); err != nil {
		return err
	}
	fmt.Printf("Shipped %d trades under run %s\n", len(trades), runID)
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printResult(res reconcile.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "id\topen\topen_px\tclose\tclose_px\ttype\tsize\tpnl\tclosed_by")
	for _, t := range res.Trades {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, dataio.FormatTime(t.OpenTime), t.OpenPrice, dataio.FormatTime(t.CloseTime), t.ClosePrice,
			t.Direction, t.Size, t.PnL.StringFixed(2), t.CloseRole)
	}
	w.Flush()

	if len(res.Anomalies) > 0 {
		fmt.Println("\n=== Anomalies ===")
		for _, a := range res.Anomalies {
			fmt.Println(a)
		}
	}

	s := reconcile.Summarize(res.Trades)
	fmt.Println("\n=== Reconciliation Summary ===")
	fmt.Printf("Trades: %d (long %d, short %d), Wins: %d, Losses: %d, WinRate: %s%%, ProfitFactor: %s\n",
		s.Count, s.Long, s.Short, s.Wins, s.Losses, s.WinRate.StringFixed(2), s.ProfitFactor.StringFixed(2))
	fmt.Printf("NetPnL: %s, GrossProfit: %s, GrossLoss: %s, AvgPnL: %s\n",
		s.NetPnL.StringFixed(2), s.GrossProfit.StringFixed(2), s.GrossLoss.StringFixed(2), s.AveragePnL.StringFixed(2))
}
