package codec

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fullstorydev/quicksync/errs"
	"github.com/fullstorydev/quicksync/schema"
)

// Sub-tags for opaque values. Presence is carried separately, so there is no
// tag for NULL.
const (
	opaqueInt64 byte = iota + 1
	opaqueFloat64
	opaqueBool
	opaqueString
	opaqueBytes
	opaqueTime
)

// kindCodec is everything the dump needs to know about one field kind: how to
// scan it out of a result row, how to turn the scanned value into a row value,
// and how to put it on and take it off the wire.
type kindCodec struct {
	dest    func() interface{}
	extract func(dest interface{}) interface{}
	encode  func(w *Writer, v interface{}) error
	decode  func(r *Reader) (interface{}, error)
}

var codecs = map[schema.Kind]*kindCodec{
	schema.KindText: {
		dest: func() interface{} { return new(sql.NullString) },
		extract: func(dest interface{}) interface{} {
			if ns := dest.(*sql.NullString); ns.Valid {
				return ns.String
			}
			return nil
		},
		encode: func(w *Writer, v interface{}) error {
			s, ok := v.(string)
			if !ok {
				return errors.Errorf("text field got %T", v)
			}
			return w.putString(s)
		},
		decode: func(r *Reader) (interface{}, error) {
			b, err := r.getBytes()
			return string(b), err
		},
	},
	schema.KindInt64: {
		dest: func() interface{} { return new(sql.NullInt64) },
		extract: func(dest interface{}) interface{} {
			if ni := dest.(*sql.NullInt64); ni.Valid {
				return ni.Int64
			}
			return nil
		},
		encode: func(w *Writer, v interface{}) error {
			n, ok := v.(int64)
			if !ok {
				return errors.Errorf("int64 field got %T", v)
			}
			return w.putVarint(n)
		},
		decode: func(r *Reader) (interface{}, error) {
			return r.getVarint()
		},
	},
	schema.KindBytes: {
		dest: func() interface{} { return new([]byte) },
		extract: func(dest interface{}) interface{} {
			if b := *dest.(*[]byte); b != nil {
				return b
			}
			return nil
		},
		encode: func(w *Writer, v interface{}) error {
			b, ok := v.([]byte)
			if !ok {
				return errors.Errorf("bytes field got %T", v)
			}
			return w.putBytes(b)
		},
		decode: func(r *Reader) (interface{}, error) {
			return r.getBytes()
		},
	},
	schema.KindOpaque: {
		dest: func() interface{} { return new(interface{}) },
		extract: func(dest interface{}) interface{} {
			return *dest.(*interface{})
		},
		encode: encodeOpaque,
		decode: decodeOpaque,
	},
}

// Plan is the per-descriptor coercion table, resolved once before any row is
// read.
type Plan struct {
	Desc   *schema.Descriptor
	codecs []*kindCodec
	log    logrus.FieldLogger
	lossy  map[string]bool
}

// NewPlan resolves a codec for every field of desc. Opaque fields are
// accepted with a warning: their values are carried best-effort.
func NewPlan(desc *schema.Descriptor, log logrus.FieldLogger) (*Plan, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Plan{Desc: desc, log: log, lossy: make(map[string]bool)}
	for _, f := range desc.Fields {
		c, ok := codecs[f.Kind]
		if !ok {
			return nil, errs.Ef(errs.Introspection, desc.Name, "field %q has unsupported kind %s", f.Name, f.Kind)
		}
		if f.Kind == schema.KindOpaque {
			log.WithFields(logrus.Fields{"entity": desc.Name, "field": f.Name}).
				Warn("no typed extraction for field, values are carried best-effort")
		}
		p.codecs = append(p.codecs, c)
	}
	return p, nil
}

// ScanDest returns fresh scan destinations for one row.
func (p *Plan) ScanDest() []interface{} {
	dest := make([]interface{}, len(p.codecs))
	for i, c := range p.codecs {
		dest[i] = c.dest()
	}
	return dest
}

// Extract converts scanned destinations into row values: string, int64,
// []byte or a normalised opaque value, with nil for NULL.
func (p *Plan) Extract(dest []interface{}) []interface{} {
	values := make([]interface{}, len(dest))
	for i, c := range p.codecs {
		v := c.extract(dest[i])
		if p.Desc.Fields[i].Kind == schema.KindOpaque {
			v = p.normalize(p.Desc.Fields[i].Name, v)
		}
		values[i] = v
	}
	return values
}

func (p *Plan) normalize(field string, v interface{}) interface{} {
	n, exact := normalizeOpaque(v)
	if !exact {
		key := fmt.Sprintf("%s/%T", field, v)
		if !p.lossy[key] {
			p.lossy[key] = true
			p.log.WithFields(logrus.Fields{"entity": p.Desc.Name, "field": field, "type": fmt.Sprintf("%T", v)}).
				Warn("value stored as its string form")
		}
	}
	return n
}

// normalizeOpaque maps a driver value onto one of the opaque wire types.
// exact is false when the value had to be stringified.
func normalizeOpaque(v interface{}) (n interface{}, exact bool) {
	switch x := v.(type) {
	case nil, int64, float64, bool, string, []byte, time.Time:
		return x, true
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), true
		}
	case float32:
		return float64(x), true
	case fmt.Stringer:
		return x.String(), false
	}
	return fmt.Sprint(v), false
}

func encodeOpaque(w *Writer, v interface{}) error {
	n, _ := normalizeOpaque(v)
	switch x := n.(type) {
	case int64:
		w.putByte(opaqueInt64)
		return w.putVarint(x)
	case float64:
		w.putByte(opaqueFloat64)
		return w.putUint64(math.Float64bits(x))
	case bool:
		w.putByte(opaqueBool)
		if x {
			return w.putByte(1)
		}
		return w.putByte(0)
	case string:
		w.putByte(opaqueString)
		return w.putString(x)
	case []byte:
		w.putByte(opaqueBytes)
		return w.putBytes(x)
	case time.Time:
		w.putByte(opaqueTime)
		return w.putString(x.Format(time.RFC3339Nano))
	}
	return errors.Errorf("opaque value of type %T", v)
}

func decodeOpaque(r *Reader) (interface{}, error) {
	tag, err := r.getByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case opaqueInt64:
		return r.getVarint()
	case opaqueFloat64:
		bits, err := r.getUint64()
		return math.Float64frombits(bits), err
	case opaqueBool:
		b, err := r.getByte()
		return b != 0, err
	case opaqueString:
		b, err := r.getBytes()
		return string(b), err
	case opaqueBytes:
		return r.getBytes()
	case opaqueTime:
		b, err := r.getBytes()
		if err != nil {
			return nil, err
		}
		return time.Parse(time.RFC3339Nano, string(b))
	}
	return nil, errors.Errorf("unknown opaque tag %d", tag)
}
