package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"backtest-analytics/services/dataio"
	"backtest-analytics/services/engine"
)

// parseStep accepts Go durations and bare minute counts ("15" or "15min")
func parseStep(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(strings.TrimSuffix(s, "min")); err == nil {
		return time.Duration(n) * time.Minute, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("unsupported duration: %s", s)
	}
	return d, nil
}

func main() {
	in := flag.String("in", "", "Input bar CSV")
	out := flag.String("out", "", "Output CSV path")
	dst := flag.String("dst", "15m", "Target cadence (e.g., 15m)")
	symbol := flag.String("symbol", "", "Symbol for input without a symbol column")
	flag.Parse()

	if *in == "" || *out == "" {
		panic("-in and -out are required")
	}
	step, err := parseStep(*dst)
	if err != nil {
		panic(err)
	}

	f, err := os.Open(*in)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	bars, err := dataio.ReadBars(f, dataio.BarOptions{Symbol: *symbol})
	if err != nil {
		panic(err)
	}
	if len(bars) == 0 {
		panic("no input bars parsed")
	}

	resampled, err := engine.Resample(bars, step)
	if err != nil {
		panic(err)
	}

	of, err := os.Create(*out)
	if err != nil {
		panic(err)
	}
	defer of.Close()
	if err := dataio.WriteBars(of, resampled); err != nil {
		panic(err)
	}
	fmt.Printf("Resampled %d bars into %d %s bars\n", len(bars), len(resampled), step)
}
