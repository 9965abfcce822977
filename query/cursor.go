// Package query pages through an entity table with offset based SELECTs.
package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/fullstorydev/quicksync/codec"
	"github.com/fullstorydev/quicksync/errs"
	"github.com/fullstorydev/quicksync/schema"
)

const DefaultPageSize = 50000

// Queryer is the part of *sql.Tx (or *sql.DB) the cursor needs.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func CountSQL(d *schema.Descriptor) string {
	return "SELECT count(1) FROM " + d.Table
}

func PageSQL(d *schema.Descriptor, limit, offset int64) string {
	return fmt.Sprintf("SELECT %s FROM %s LIMIT %d OFFSET %d", d.Columns(), d.Table, limit, offset)
}

// Cursor walks one table page by page. The row total is read once when the
// cursor is opened and is not revalidated: rows added afterwards are not
// dumped, and rows removed afterwards leave an empty page before the total is
// reached, which Next reports as an SQL error.
type Cursor struct {
	q         Queryer
	plan      *codec.Plan
	pageSize  int64
	total     int64
	processed int64
	pages     int
}

// Open counts the rows of the plan's table and returns a cursor positioned at
// the first row.
func Open(ctx context.Context, q Queryer, plan *codec.Plan, pageSize int64) (*Cursor, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	c := &Cursor{q: q, plan: plan, pageSize: pageSize}
	if err := q.QueryRowContext(ctx, CountSQL(plan.Desc)).Scan(&c.total); err != nil {
		return nil, errs.E(errs.SQL, plan.Desc.Table, errors.Wrap(err, "count rows"))
	}
	return c, nil
}

func (c *Cursor) Total() int64     { return c.total }
func (c *Cursor) Processed() int64 { return c.processed }
func (c *Cursor) Pages() int       { return c.pages }
func (c *Cursor) Done() bool       { return c.processed >= c.total }

// Next fetches the page starting at the processed offset and hands every row
// to fn as coerced values. Consumption stops at the counted total even when
// the page holds more rows. It returns the number of rows handled.
func (c *Cursor) Next(ctx context.Context, fn func(values []interface{}) error) (int, error) {
	if c.Done() {
		return 0, nil
	}
	table := c.plan.Desc.Table
	offset := c.processed

	rows, err := c.q.QueryContext(ctx, PageSQL(c.plan.Desc, c.pageSize, offset))
	if err != nil {
		return 0, errs.E(errs.SQL, table, errors.Wrapf(err, "fetch page at offset %d", offset))
	}
	defer rows.Close()
	c.pages++

	n := 0
	for c.processed < c.total && rows.Next() {
		dest := c.plan.ScanDest()
		if err := rows.Scan(dest...); err != nil {
			return n, errs.E(errs.SQL, table, errors.Wrapf(err, "scan row %d", c.processed))
		}
		c.processed++
		n++
		if err := fn(c.plan.Extract(dest)); err != nil {
			return n, err
		}
	}
	if err := rows.Err(); err != nil {
		return n, errs.E(errs.SQL, table, errors.Wrapf(err, "read page at offset %d", offset))
	}
	if n == 0 {
		return 0, errs.Ef(errs.SQL, table, "page at offset %d is empty but %d rows were counted", offset, c.total)
	}
	return n, nil
}
