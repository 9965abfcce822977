package schema

import (
	"fmt"
	"strings"
)

// Kind is the semantic type of a field. The set is closed: every field is
// exactly one of these and the codec has one implementation per kind.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindInt64
	KindBytes
	KindOpaque
)

var kindNames = map[Kind]string{
	KindText:   "text",
	KindInt64:  "int64",
	KindBytes:  "bytes",
	KindOpaque: "opaque",
}

var kindAliases = map[string]Kind{
	"text":    KindText,
	"string":  KindText,
	"varchar": KindText,
	"int64":   KindInt64,
	"integer": KindInt64,
	"long":    KindInt64,
	"bigint":  KindInt64,
	"bytes":   KindBytes,
	"blob":    KindBytes,
	"binary":  KindBytes,
	"opaque":  KindOpaque,
	"other":   KindOpaque,
	"any":     KindOpaque,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is one of the four declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind maps a kind name (case-insensitive, common SQL aliases accepted)
// to a Kind. ok is false for unknown names.
func ParseKind(s string) (k Kind, ok bool) {
	k, ok = kindAliases[strings.ToLower(strings.TrimSpace(s))]
	return k, ok
}
