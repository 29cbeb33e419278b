// Package arrowpipeline exports session statistics and trades as Apache Arrow IPC streams
package arrowpipeline

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"backtest-analytics/services/engine"
)

// Config holds Arrow pipeline configuration
type Config struct {
	Compression string `yaml:"compression"` // "", "lz4" or "zstd"
}

// Pipeline builds Arrow records from analyzer and reconciler output
type Pipeline struct {
	config     Config
	memoryPool memory.Allocator
	logger     *zap.Logger
}

// NewPipeline creates a new Arrow pipeline
func NewPipeline(config Config, logger *zap.Logger) (*Pipeline, error) {
	switch config.Compression {
	case "", "lz4", "zstd":
	default:
		return nil, fmt.Errorf("unsupported compression %q", config.Compression)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		config:     config,
		memoryPool: memory.NewGoAllocator(),
		logger:     logger,
	}, nil
}

func (p *Pipeline) writerOptions(schema *arrow.Schema) []ipc.Option {
	opts := []ipc.Option{ipc.WithSchema(schema), ipc.WithAllocator(p.memoryPool)}
	switch p.config.Compression {
	case "lz4":
		opts = append(opts, ipc.WithLZ4())
	case "zstd":
		opts = append(opts, ipc.WithZstd())
	}
	return opts
}

var (
	float64Type = arrow.PrimitiveTypes.Float64
	int64Type   = arrow.PrimitiveTypes.Int64
	int8Type    = arrow.PrimitiveTypes.Int8
	tsType      = arrow.FixedWidthTypes.Timestamp_ms
)

func field(name string, typ arrow.DataType) arrow.Field {
	return arrow.Field{Name: name, Type: typ, Nullable: true}
}

// columnFields lists the per-column statistics in record order
var columnFields = []string{
	"value", "running_max", "running_max_index", "running_min", "running_min_index",
	"slope_from_session_start", "r2_from_session_start",
	"slope_from_last_max", "r2_from_last_max",
	"slope_from_last_min", "r2_from_last_min",
}

// SessionSchema is the schema of the records SessionRecord builds for rep
func SessionSchema(rep engine.SessionReport, md *arrow.Metadata) *arrow.Schema {
	fields := []arrow.Field{
		field("session_id", arrow.BinaryTypes.String),
		field("index", int64Type),
		field("timestamp", tsType),
	}
	for _, col := range rep.Columns {
		for _, name := range columnFields {
			typ := arrow.DataType(float64Type)
			if name == "running_max_index" || name == "running_min_index" {
				typ = int64Type
			}
			fields = append(fields, field(col.Column.String()+"_"+name, typ))
		}
	}
	for _, label := range percentageLabels(rep) {
		fields = append(fields, field("pct_"+label, float64Type))
	}
	fields = append(fields,
		field("sign", int8Type),
		field("run_start", int64Type),
		field("peak", float64Type),
		field("valley", float64Type),
		field("candle_open", float64Type),
		field("candle_high", float64Type),
		field("candle_low", float64Type),
		field("candle_close", float64Type),
		field("marubozu", arrow.FixedWidthTypes.Boolean),
		field("direction", int8Type),
		field("pivot", float64Type),
		field("s1", float64Type),
		field("s2", float64Type),
		field("r1", float64Type),
		field("r2", float64Type),
	)
	return arrow.NewSchema(fields, md)
}

func percentageLabels(rep engine.SessionReport) []string {
	labels := make([]string, 0, len(rep.Percentages))
	for label := range rep.Percentages {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// SessionRecord converts one session report to a record with one row per bar.
// Undefined slots become nulls. The caller releases the record.
func (p *Pipeline) SessionRecord(rep engine.SessionReport) (arrow.Record, error) {
	return p.sessionRecord(rep, SessionSchema(rep, nil))
}

func (p *Pipeline) sessionRecord(rep engine.SessionReport, schema *arrow.Schema) (arrow.Record, error) {
	n := len(rep.Session.Bars)
	if n == 0 {
		return nil, fmt.Errorf("session %s has no bars", rep.Session.ID)
	}
	for _, col := range rep.Columns {
		if len(col.Stats) != n {
			return nil, fmt.Errorf("session %s: %s has %d stats for %d bars", rep.Session.ID, col.Column, len(col.Stats), n)
		}
	}

	b := array.NewRecordBuilder(p.memoryPool, schema)
	defer b.Release()
	next := 0
	fb := func() array.Builder {
		f := b.Field(next)
		next++
		return f
	}

	ids := fb().(*array.StringBuilder)
	idx := fb().(*array.Int64Builder)
	ts := fb().(*array.TimestampBuilder)
	for i, bar := range rep.Session.Bars {
		ids.Append(rep.Session.ID)
		idx.Append(int64(i))
		ts.Append(arrow.Timestamp(bar.Timestamp.UnixMilli()))
	}

	for _, col := range rep.Columns {
		value := fb().(*array.Float64Builder)
		maxV := fb().(*array.Float64Builder)
		maxI := fb().(*array.Int64Builder)
		minV := fb().(*array.Float64Builder)
		minI := fb().(*array.Int64Builder)
		slots := make([]*array.Float64Builder, 6)
		for k := range slots {
			slots[k] = fb().(*array.Float64Builder)
		}
		for _, st := range col.Stats {
			value.Append(st.Value)
			maxV.Append(st.RunningMax)
			maxI.Append(int64(st.RunningMaxIndex))
			minV.Append(st.RunningMin)
			minI.Append(int64(st.RunningMinIndex))
			for k, v := range []*float64{
				st.SlopeFromSessionStart, st.R2FromSessionStart,
				st.SlopeFromLastMax, st.R2FromLastMax,
				st.SlopeFromLastMin, st.R2FromLastMin,
			} {
				appendOptional(slots[k], v)
			}
		}
	}

	for _, label := range percentageLabels(rep) {
		pct := fb().(*array.Float64Builder)
		values := rep.Percentages[label]
		for i := 0; i < n; i++ {
			if i < len(values) {
				pct.Append(values[i])
			} else {
				pct.AppendNull()
			}
		}
	}

	sign := fb().(*array.Int8Builder)
	runStart := fb().(*array.Int64Builder)
	for i := 0; i < n; i++ {
		if i >= len(rep.Runs) {
			sign.AppendNull()
			runStart.AppendNull()
			continue
		}
		if rep.Runs[i].Sign == engine.SignUndefined {
			sign.AppendNull()
		} else {
			sign.Append(int8(rep.Runs[i].Sign))
		}
		runStart.Append(int64(rep.Runs[i].RunStart))
	}

	for _, res := range []engine.PeakResult{rep.Peaks, rep.Valleys} {
		marks := fb().(*array.Float64Builder)
		for i := 0; i < n; i++ {
			if i < len(res.Marks) {
				appendOptional(marks, res.Marks[i])
			} else {
				marks.AppendNull()
			}
		}
	}

	cOpen := fb().(*array.Float64Builder)
	cHigh := fb().(*array.Float64Builder)
	cLow := fb().(*array.Float64Builder)
	cClose := fb().(*array.Float64Builder)
	maru := fb().(*array.BooleanBuilder)
	dir := fb().(*array.Int8Builder)
	for i := 0; i < n; i++ {
		if i >= len(rep.Candles) {
			for _, f := range []array.Builder{cOpen, cHigh, cLow, cClose, maru, dir} {
				f.AppendNull()
			}
			continue
		}
		c := rep.Candles[i]
		cOpen.Append(c.Open)
		cHigh.Append(c.High)
		cLow.Append(c.Low)
		cClose.Append(c.Close)
		maru.Append(c.Marubozu)
		dir.Append(int8(c.Direction))
	}

	pivots := make([]*array.Float64Builder, 5)
	for k := range pivots {
		pivots[k] = fb().(*array.Float64Builder)
	}
	for i := 0; i < n; i++ {
		if rep.Pivots == nil {
			for _, f := range pivots {
				f.AppendNull()
			}
			continue
		}
		pv := rep.Pivots
		for k, v := range []float64{pv.Pivot, pv.S1, pv.S2, pv.R1, pv.R2} {
			pivots[k].Append(v)
		}
	}

	return b.NewRecord(), nil
}

func appendOptional(b *array.Float64Builder, v *float64) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}

// WriteReport writes every session of report as one IPC stream, one record per session.
// Run metadata travels in the schema.
func (p *Pipeline) WriteReport(w io.Writer, report *engine.Report) error {
	if report == nil || len(report.Sessions) == 0 {
		return fmt.Errorf("no sessions to export")
	}
	md := arrow.NewMetadata(
		[]string{"run_id", "symbol", "config_hash", "sessions"},
		[]string{report.RunID, report.Symbol, report.ConfigHash, strconv.Itoa(len(report.Sessions))},
	)
	schema := SessionSchema(report.Sessions[0], &md)

	writer := ipc.NewWriter(w, p.writerOptions(schema)...)
	for _, rep := range report.Sessions {
		if len(rep.Session.Bars) == 0 {
			continue
		}
		record, err := p.sessionRecord(rep, schema)
		if err != nil {
			writer.Close()
			return err
		}
		err = writer.Write(record)
		record.Release()
		if err != nil {
			writer.Close()
			return fmt.Errorf("failed to write Arrow record: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Arrow stream: %w", err)
	}
	p.logger.Debug("Wrote Arrow report",
		zap.String("run_id", report.RunID),
		zap.Int("sessions", len(report.Sessions)),
	)
	return nil
}

// Stats summarizes a decoded IPC stream
type Stats struct {
	Records  int
	Rows     int64
	Columns  []string
	Nulls    map[string]int64
	Metadata map[string]string
}

// ReadStats decodes an IPC stream and counts its rows and nulls per column
func (p *Pipeline) ReadStats(r io.Reader) (*Stats, error) {
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(p.memoryPool))
	if err != nil {
		return nil, fmt.Errorf("open Arrow stream: %w", err)
	}
	defer rdr.Release()

	schema := rdr.Schema()
	st := &Stats{Nulls: make(map[string]int64), Metadata: make(map[string]string)}
	for _, f := range schema.Fields() {
		st.Columns = append(st.Columns, f.Name)
	}
	md := schema.Metadata()
	for i, k := range md.Keys() {
		st.Metadata[k] = md.Values()[i]
	}
	for rdr.Next() {
		rec := rdr.Record()
		st.Records++
		st.Rows += rec.NumRows()
		for i, col := range rec.Columns() {
			st.Nulls[schema.Field(i).Name] += int64(col.NullN())
		}
	}
	if err := rdr.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read Arrow stream: %w", err)
	}
	return st, nil
}
