package clickhouse

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

type fakeRows struct {
	data [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d dest for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Err() error   { return nil }

type fakeBatch struct {
	conn    *fakeConn
	query   string
	rows    [][]any
	sent    bool
	aborted bool
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	b.conn.inserted[b.query] = append(b.conn.inserted[b.query], b.rows...)
	return nil
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

// fakeConn answers queries from canned rows keyed by a substring of the SQL
type fakeConn struct {
	answers  map[string][][]any
	queries  []string
	args     [][]any
	execs    []string
	inserted map[string][][]any
}

func newFakeConn() *fakeConn {
	return &fakeConn{answers: map[string][][]any{}, inserted: map[string][][]any{}}
}

func (c *fakeConn) Query(_ context.Context, query string, args ...any) (Rows, error) {
	c.queries = append(c.queries, query)
	c.args = append(c.args, args)
	for key, data := range c.answers {
		if strings.Contains(query, key) {
			return &fakeRows{data: data}, nil
		}
	}
	return &fakeRows{}, nil
}

func (c *fakeConn) Exec(_ context.Context, query string, _ ...any) error {
	c.execs = append(c.execs, query)
	return nil
}

func (c *fakeConn) PrepareBatch(_ context.Context, query string) (Batch, error) {
	return &fakeBatch{conn: c, query: query}, nil
}

func (c *fakeConn) Close() error { return nil }
