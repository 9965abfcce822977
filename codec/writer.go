package codec

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/fullstorydev/quicksync/errs"
	"github.com/fullstorydev/quicksync/schema"
)

const bufferSize = 64 << 10

// Writer appends entity blocks to a gzip-compressed dump stream. It is not
// safe for concurrent use.
type Writer struct {
	gz      *gzip.Writer
	buf     *bufio.Writer
	scratch [binary.MaxVarintLen64]byte
	closed  bool
}

// NewWriter wraps w with gzip at the given level (gzip.DefaultCompression
// when unsure). The caller still owns and closes w.
func NewWriter(w io.Writer, level int) (*Writer, error) {
	gz, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, errs.E(errs.Serialization, "open stream", err)
	}
	return &Writer{gz: gz, buf: bufio.NewWriterSize(gz, bufferSize)}, nil
}

// WriteDescriptor writes the self-describing header of a block: entity name
// and each field's name and kind.
func (w *Writer) WriteDescriptor(d *schema.Descriptor) error {
	w.putString(d.Name)
	w.putUvarint(uint64(len(d.Fields)))
	for _, f := range d.Fields {
		w.putString(f.Name)
		w.putByte(byte(f.Kind))
	}
	return w.check(d.Name, "descriptor")
}

// WriteCount writes the declared row count of the current block.
func (w *Writer) WriteCount(n int64) error {
	w.putUint64(uint64(n))
	return w.check("", "row count")
}

// WriteRow encodes one row in descriptor order.
func (w *Writer) WriteRow(p *Plan, values []interface{}) error {
	if len(values) != len(p.codecs) {
		return errs.Ef(errs.Serialization, p.Desc.Name, "row has %d values, descriptor has %d fields", len(values), len(p.codecs))
	}
	for i, v := range values {
		if v == nil {
			w.putByte(0)
			continue
		}
		w.putByte(1)
		if err := p.codecs[i].encode(w, v); err != nil {
			return errs.E(errs.Serialization, p.Desc.Name, errors.Wrapf(err, "field %s", p.Desc.Fields[i].Name))
		}
	}
	return w.check(p.Desc.Name, "row")
}

// Flush pushes everything written so far through the compressor to the
// underlying writer.
func (w *Writer) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return errs.E(errs.Serialization, "flush", err)
	}
	if err := w.gz.Flush(); err != nil {
		return errs.E(errs.Serialization, "flush", err)
	}
	return nil
}

// Close flushes and terminates the gzip stream. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.buf.Flush(); err != nil {
		return errs.E(errs.Serialization, "close", err)
	}
	if err := w.gz.Close(); err != nil {
		return errs.E(errs.Serialization, "close", err)
	}
	return nil
}

// check surfaces the sticky error of the buffered writer, if any.
func (w *Writer) check(op, what string) error {
	if _, err := w.buf.Write(nil); err != nil {
		return errs.E(errs.Serialization, op, errors.Wrapf(err, "write %s", what))
	}
	return nil
}

func (w *Writer) putByte(b byte) error {
	return w.buf.WriteByte(b)
}

func (w *Writer) putUvarint(x uint64) error {
	n := binary.PutUvarint(w.scratch[:], x)
	_, err := w.buf.Write(w.scratch[:n])
	return err
}

func (w *Writer) putVarint(x int64) error {
	n := binary.PutVarint(w.scratch[:], x)
	_, err := w.buf.Write(w.scratch[:n])
	return err
}

func (w *Writer) putUint64(x uint64) error {
	binary.BigEndian.PutUint64(w.scratch[:8], x)
	_, err := w.buf.Write(w.scratch[:8])
	return err
}

func (w *Writer) putBytes(b []byte) error {
	if err := w.putUvarint(uint64(len(b))); err != nil {
		return err
	}
	_, err := w.buf.Write(b)
	return err
}

func (w *Writer) putString(s string) error {
	if err := w.putUvarint(uint64(len(s))); err != nil {
		return err
	}
	_, err := w.buf.WriteString(s)
	return err
}
