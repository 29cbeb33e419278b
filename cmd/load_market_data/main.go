// One-shot loader for bar and order log CSVs into ClickHouse. Bars dedupe on (symbol, ts).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backtest-analytics/services/clickhouse"
	"backtest-analytics/services/config"
	"backtest-analytics/services/dataio"
	"backtest-analytics/services/logging"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file")
	barFiles := flag.String("bars", "", "Comma separated bar CSVs")
	symbol := flag.String("symbol", "", "Symbol for files without a symbol column; defaults to the file name")
	ordersPath := flag.String("orders", "", "Order log CSV")
	runID := flag.String("run", "", "Run id for the order log; generated when empty")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	ctx := context.Background()

	// Connect CH
	store, err := clickhouse.Open(ctx, cfg.ClickHouse, logger)
	if err != nil {
		logger.Fatal("Connect failed", zap.Error(err))
	}
	defer store.Close()

	// Ensure DB + tables
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("Ensure schema failed", zap.Error(err))
	}

	for _, path := range splitList(*barFiles) {
		sym := *symbol
		if sym == "" {
			sym = strings.ToUpper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		}
		n, err := loadBars(ctx, store, path, sym, cfg)
		if err != nil {
			logger.Fatal("Load bars failed", zap.String("file", path), zap.Error(err))
		}
		fmt.Printf("%s: inserted %d bars for %s\n", path, n, sym)
	}

	if *ordersPath != "" {
		id := *runID
		if id == "" {
			id = uuid.New().String()
		}
		n, rejected, err := loadOrders(ctx, store, *ordersPath, id, cfg)
		if err != nil {
			logger.Fatal("Load orders failed", zap.String("file", *ordersPath), zap.Error(err))
		}
		fmt.Printf("%s: inserted %d order events under run %s (rejected %d)\n", *ordersPath, n, id, rejected)
	}
}

func loadBars(ctx context.Context, store *clickhouse.Store, path, symbol string, cfg *config.Config) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	bars, err := dataio.ReadBars(f, dataio.BarOptions{Symbol: symbol, Location: cfg.ReconcileLocation()})
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	return len(bars), store.InsertBars(ctx, bars)
}

func loadOrders(ctx context.Context, store *clickhouse.Store, path, runID string, cfg *config.Config) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	log, err := dataio.ReadOrderEvents(f, dataio.EventOptions{
		Symbol:   cfg.Reconcile.Symbol,
		Location: cfg.ReconcileLocation(),
	})
	if err != nil {
		return 0, 0, err
	}
	if err := store.InsertOrderEvents(ctx, runID, log); err != nil {
		return 0, 0, err
	}
	return len(log.Events), len(log.Rejected), nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
