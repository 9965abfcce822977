package codec

import (
	"bufio"
	"encoding/binary"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/fullstorydev/quicksync/errs"
	"github.com/fullstorydev/quicksync/schema"
)

// maxLength bounds any length prefix read from a stream so a corrupt stream
// cannot force a huge allocation.
const maxLength = 1 << 30

// Reader decodes a stream produced by Writer.
type Reader struct {
	gz *gzip.Reader
	br *bufio.Reader
}

func NewReader(r io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errs.E(errs.Serialization, "open stream", err)
	}
	return &Reader{gz: gz, br: bufio.NewReaderSize(gz, bufferSize)}, nil
}

// NextBlock reads the descriptor and declared row count of the next block.
// It returns io.EOF when the stream ends cleanly between blocks.
func (r *Reader) NextBlock() (*schema.Descriptor, int64, error) {
	if _, err := r.br.Peek(1); err == io.EOF {
		return nil, 0, io.EOF
	}

	name, err := r.getBytes()
	if err != nil {
		return nil, 0, r.fail("", "descriptor", err)
	}
	d := &schema.Descriptor{Name: string(name)}
	n, err := r.getUvarint()
	if err != nil {
		return nil, 0, r.fail(d.Name, "field count", err)
	}
	if n > maxLength {
		return nil, 0, errs.Ef(errs.Serialization, d.Name, "field count %d out of range", n)
	}
	for i := uint64(0); i < n; i++ {
		fname, err := r.getBytes()
		if err != nil {
			return nil, 0, r.fail(d.Name, "field name", err)
		}
		kb, err := r.getByte()
		if err != nil {
			return nil, 0, r.fail(d.Name, "field kind", err)
		}
		kind := schema.Kind(kb)
		if !kind.Valid() {
			return nil, 0, errs.Ef(errs.Serialization, d.Name, "field %s has unknown kind %d", fname, kb)
		}
		d.Fields = append(d.Fields, schema.Field{Name: string(fname), Kind: kind})
	}
	d.Table = strings.ToLower(d.Name)

	count, err := r.getUint64()
	if err != nil {
		return nil, 0, r.fail(d.Name, "row count", err)
	}
	return d, int64(count), nil
}

// ReadRow decodes one row laid out by d.
func (r *Reader) ReadRow(d *schema.Descriptor) ([]interface{}, error) {
	values := make([]interface{}, len(d.Fields))
	for i, f := range d.Fields {
		present, err := r.getByte()
		if err != nil {
			return nil, r.fail(d.Name, "row", err)
		}
		if present == 0 {
			continue
		}
		v, err := codecs[f.Kind].decode(r)
		if err != nil {
			return nil, r.fail(d.Name, "field "+f.Name, err)
		}
		values[i] = v
	}
	return values, nil
}

func (r *Reader) Close() error {
	return r.gz.Close()
}

func (r *Reader) fail(op, what string, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return errs.E(errs.Serialization, op, errors.Wrapf(err, "read %s", what))
}

func (r *Reader) getByte() (byte, error) {
	return r.br.ReadByte()
}

func (r *Reader) getUvarint() (uint64, error) {
	return binary.ReadUvarint(r.br)
}

func (r *Reader) getVarint() (int64, error) {
	return binary.ReadVarint(r.br)
}

func (r *Reader) getUint64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r.br, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (r *Reader) getBytes() ([]byte, error) {
	n, err := r.getUvarint()
	if err != nil {
		return nil, err
	}
	if n > maxLength {
		return nil, errors.Errorf("length %d out of range", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.br, b); err != nil {
		return nil, err
	}
	return b, nil
}

// BlockInfo summarises one block found by Verify.
type BlockInfo struct {
	Entity   string
	Fields   int
	Declared int64
	Rows     int64
}

// Complete reports whether every declared row was present.
func (b BlockInfo) Complete() bool { return b.Rows == b.Declared }

// Verify decodes a whole stream and reports each block. On a truncated or
// corrupt stream it returns the blocks seen so far, the last one partial,
// along with the error.
func Verify(src io.Reader) ([]BlockInfo, error) {
	r, err := NewReader(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var blocks []BlockInfo
	for {
		d, count, err := r.NextBlock()
		if err == io.EOF {
			return blocks, nil
		}
		if err != nil {
			return blocks, err
		}
		info := BlockInfo{Entity: d.Name, Fields: len(d.Fields), Declared: count}
		for info.Rows < count {
			if _, err := r.ReadRow(d); err != nil {
				return append(blocks, info), err
			}
			info.Rows++
		}
		blocks = append(blocks, info)
	}
}
