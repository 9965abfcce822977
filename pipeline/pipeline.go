// Package pipeline drives a full dump: for every selected entity type it
// describes the table, counts its rows, pages through them and appends the
// encoded block to the output stream, all inside one transaction.
package pipeline

import (
	"context"
	"database/sql"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fullstorydev/quicksync/codec"
	"github.com/fullstorydev/quicksync/errs"
	"github.com/fullstorydev/quicksync/query"
	"github.com/fullstorydev/quicksync/schema"
)

const DefaultProgressEvery = 1000

type Options struct {
	// Namespace selects the declared entity types to dump.
	Namespace string
	// Entities, when set, restricts the dump to these names, in this order.
	Entities []string

	PageSize         int64
	ProgressEvery    int64
	CompressionLevel int
	// ReadOnly asks the driver for a read-only transaction.
	ReadOnly bool

	Log logrus.FieldLogger
}

// DefaultOptions mirrors the property defaults.
func DefaultOptions() Options {
	return Options{
		Namespace:        schema.DefaultNamespace,
		PageSize:         query.DefaultPageSize,
		ProgressEvery:    DefaultProgressEvery,
		CompressionLevel: gzip.DefaultCompression,
	}
}

type TableSummary struct {
	Entity   string
	Table    string
	Declared int64
	Written  int64
	Pages    int
	Elapsed  time.Duration
}

type Summary struct {
	Tables  []TableSummary
	Elapsed time.Duration
}

// Rows is the number of rows written across all tables.
func (s *Summary) Rows() int64 {
	var n int64
	for _, t := range s.Tables {
		n += t.Written
	}
	return n
}

type Pipeline struct {
	db   *sql.DB
	reg  *schema.Registry
	opts Options
}

func New(db *sql.DB, reg *schema.Registry, opts Options) *Pipeline {
	if opts.Namespace == "" {
		opts.Namespace = schema.DefaultNamespace
	}
	if opts.PageSize <= 0 {
		opts.PageSize = query.DefaultPageSize
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Pipeline{db: db, reg: reg, opts: opts}
}

// run is the state of one dump, threaded through every stage.
type run struct {
	opts    Options
	reg     *schema.Registry
	tx      *sql.Tx
	enc     *codec.Writer
	log     logrus.FieldLogger
	summary *Summary
}

// entityNames resolves the dump order: the explicit selection if any,
// otherwise every entity declared in the namespace.
func (p *Pipeline) entityNames() ([]string, error) {
	declared := p.reg.Names(p.opts.Namespace)
	if len(p.opts.Entities) == 0 {
		return declared, nil
	}

	inNamespace := make(map[string]bool, len(declared))
	for _, name := range declared {
		inNamespace[name] = true
	}
	var names []string
	seen := make(map[string]bool)
	for _, name := range p.opts.Entities {
		if !inNamespace[name] {
			return nil, errs.Ef(errs.ClassResolution, name, "entity not declared in namespace %q", p.opts.Namespace)
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// Run dumps every selected entity type to w. On failure the transaction is
// left open and w may hold a partial stream; the caller is expected to end
// the process.
func (p *Pipeline) Run(ctx context.Context, w io.Writer) (*Summary, error) {
	start := time.Now()
	names, err := p.entityNames()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		p.opts.Log.WithField("namespace", p.opts.Namespace).Warn("no entity types to dump")
	}

	enc, err := codec.NewWriter(w, p.opts.CompressionLevel)
	if err != nil {
		return nil, err
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: p.opts.ReadOnly})
	if err != nil {
		return nil, errs.E(errs.SQL, "begin", err)
	}

	r := &run{
		opts:    p.opts,
		reg:     p.reg,
		tx:      tx,
		enc:     enc,
		log:     p.opts.Log,
		summary: &Summary{},
	}
	for _, name := range names {
		if err := r.dumpEntity(ctx, name); err != nil {
			return r.summary, err
		}
	}

	if err := tx.Commit(); err != nil {
		return r.summary, errs.E(errs.SQL, "commit", err)
	}
	if err := enc.Close(); err != nil {
		return r.summary, err
	}
	r.summary.Elapsed = time.Since(start)
	return r.summary, nil
}

// RunFile creates path and dumps into it.
func (p *Pipeline) RunFile(ctx context.Context, path string) (*Summary, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errs.E(errs.Serialization, path, errors.Wrap(err, "create dump file"))
	}
	defer f.Close()

	summary, err := p.Run(ctx, f)
	if err != nil {
		return summary, err
	}
	if err := f.Sync(); err != nil {
		return summary, errs.E(errs.Serialization, path, errors.Wrap(err, "sync dump file"))
	}
	if err := f.Close(); err != nil {
		return summary, errs.E(errs.Serialization, path, errors.Wrap(err, "close dump file"))
	}
	return summary, nil
}

func (r *run) dumpEntity(ctx context.Context, name string) error {
	start := time.Now()
	desc, err := r.reg.Describe(r.opts.Namespace + "." + name)
	if err != nil {
		return err
	}
	log := r.log.WithFields(logrus.Fields{"entity": desc.Name, "table": desc.Table})

	plan, err := codec.NewPlan(desc, log)
	if err != nil {
		return err
	}
	log.WithField("sql", query.PageSQL(desc, r.opts.PageSize, 0)).Debug("dumping entity")

	if err := r.enc.WriteDescriptor(desc); err != nil {
		return err
	}
	cursor, err := query.Open(ctx, r.tx, plan, r.opts.PageSize)
	if err != nil {
		return err
	}
	if err := r.enc.WriteCount(cursor.Total()); err != nil {
		return err
	}

	total := cursor.Total()
	for !cursor.Done() {
		_, err := cursor.Next(ctx, func(values []interface{}) error {
			if err := r.enc.WriteRow(plan, values); err != nil {
				return err
			}
			if n := cursor.Processed(); n%r.opts.ProgressEvery == 0 {
				log.Infof("%s: %s / %s", desc.Name, humanize.Comma(n), humanize.Comma(total))
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := r.enc.Flush(); err != nil {
			return err
		}
	}

	ts := TableSummary{
		Entity:   desc.Name,
		Table:    desc.Table,
		Declared: total,
		Written:  cursor.Processed(),
		Pages:    cursor.Pages(),
		Elapsed:  time.Since(start),
	}
	r.summary.Tables = append(r.summary.Tables, ts)
	log.WithFields(logrus.Fields{"rows": ts.Written, "pages": ts.Pages}).
		Infof("dumped %s rows in %s", humanize.Comma(ts.Written), ts.Elapsed.Round(time.Millisecond))
	return nil
}
