package clickhouse

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backtest-analytics/services/reconcile"
)

// BatchClient ships trades over the ClickHouse HTTP interface as gzip JSONEachRow
type BatchClient struct {
	baseURL    string
	table      string
	username   string
	password   string
	httpClient *http.Client
	buffer     []TradeRow
	batchSize  int
}

// TradeRow is the JSON shape of one trade; decimals travel as strings
type TradeRow struct {
	RunID          string `json:"run_id"`
	ID             int64  `json:"id"`
	Symbol         string `json:"symbol"`
	OpenDatetime   string `json:"open_datetime"`
	OpenPrice      string `json:"open_executed_price"`
	CloseDatetime  string `json:"close_datetime"`
	ClosePrice     string `json:"close_executed_price"`
	Type           string `json:"type"`
	Size           string `json:"size"`
	PriceDiff      string `json:"price_diff"`
	PercentageDiff string `json:"percentage_diff"`
	PnL            string `json:"pnl"`
	CloseRef       int64  `json:"close_ref"`
	CloseRole      string `json:"close_role"`
}

const rowTimeLayout = "2006-01-02 15:04:05.000"

// NewTradeRow flattens a trade for insertion
func NewTradeRow(runID string, t reconcile.Trade) TradeRow {
	return TradeRow{
		RunID:          runID,
		ID:             t.ID,
		Symbol:         t.Symbol,
		OpenDatetime:   t.OpenTime.UTC().Format(rowTimeLayout),
		OpenPrice:      t.OpenPrice.String(),
		CloseDatetime:  t.CloseTime.UTC().Format(rowTimeLayout),
		ClosePrice:     t.ClosePrice.String(),
		Type:           string(t.Direction),
		Size:           t.Size.String(),
		PriceDiff:      t.PriceDiff.String(),
		PercentageDiff: t.PercentageDiff.String(),
		PnL:            t.PnL.String(),
		CloseRef:       t.CloseRef,
		CloseRole:      t.CloseRole.String(),
	}
}

func NewBatchClient(baseURL, table, username, password string, batchSize int) *BatchClient {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if table == "" {
		table = "backtest.trades"
	}
	return &BatchClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		table:     table,
		username:  username,
		password:  password,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		buffer: make([]TradeRow, 0, batchSize),
	}
}

// Pending returns the number of buffered rows
func (c *BatchClient) Pending() int { return len(c.buffer) }

// AddTrade buffers a row and flushes when the batch is full
func (c *BatchClient) AddTrade(ctx context.Context, row TradeRow) error {
	c.buffer = append(c.buffer, row)
	if len(c.buffer) >= c.batchSize {
		return c.Flush(ctx)
	}
	return nil
}

// Flush posts the buffered rows. The buffer is kept on failure so the caller can retry.
func (c *BatchClient) Flush(ctx context.Context) error {
	if len(c.buffer) == 0 {
		return nil
	}

	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gzWriter)
	for _, row := range c.buffer {
		// Encode terminates each object with a newline, which is the JSONEachRow framing
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("gzip error: %w", err)
	}

	query := fmt.Sprintf("INSERT INTO %s FORMAT JSONEachRow", c.table)
	settings := "input_format_null_as_default=1&date_time_input_format=best_effort"
	endpoint := fmt.Sprintf("%s/?query=%s&%s", c.baseURL, url.QueryEscape(query), settings)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Content-Encoding", "gzip")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("clickhouse error %d: %s", resp.StatusCode, string(body))
	}
	c.buffer = c.buffer[:0]
	return nil
}

func (c *BatchClient) Close(ctx context.Context) error {
	return c.Flush(ctx)
}

// TradesDDL creates the table BatchClient writes to
func TradesDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id String,
	id Int64,
	symbol LowCardinality(String),
	open_datetime DateTime64(3, 'UTC'),
	open_executed_price Decimal(38, 10),
	close_datetime DateTime64(3, 'UTC'),
	close_executed_price Decimal(38, 10),
	type LowCardinality(String),
	size Decimal(38, 10),
	price_diff Decimal(38, 10),
	percentage_diff Decimal(38, 10),
	pnl Decimal(38, 10),
	close_ref Int64,
	close_role LowCardinality(String)
) ENGINE = ReplacingMergeTree
ORDER BY (run_id, id)`, table)
}
