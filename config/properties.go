package config

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Property names read by the dump tool.
const (
	PropDBURL            = "dbUrl"
	PropTestDBURL        = "testDbUrl"
	PropTestnet          = "isTestnet"
	PropNamespace        = "dump.namespace"
	PropEntities         = "dump.entities"
	PropPageSize         = "dump.pageSize"
	PropProgressInterval = "dump.progressInterval"
	PropCompressionLevel = "dump.compressionLevel"
	PropReadOnly         = "dump.readOnly"
	PropLogLevel         = "log.level"
)

const logUndefined = "%s undefined. Default: %v"

// Properties is a typed lookup over string properties. Every lookup yields a
// usable value: when a property is missing or does not parse, the default is
// returned and the fallback is logged.
type Properties struct {
	values map[string]string
	log    logrus.FieldLogger
}

func NewProperties(values map[string]string, log logrus.FieldLogger) *Properties {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if values == nil {
		values = map[string]string{}
	}
	return &Properties{values: values, log: log}
}

func (p *Properties) lookup(name string) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Bool accepts 1, active, true, yes, on and 0, false, no, off, ignoring case.
func (p *Properties) Bool(name string, def bool) bool {
	if v, ok := p.lookup(name); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "active", "true", "yes", "on":
			p.log.Debugf("%s = 'true'", name)
			return true
		case "0", "false", "no", "off":
			p.log.Debugf("%s = 'false'", name)
			return false
		}
	}
	p.log.Infof(logUndefined, name, def)
	return def
}

// Int parses a decimal value, or hexadecimal with a 0x prefix, or binary with
// a 0b prefix. Prefixes are lower case only and the value is not trimmed.
func (p *Properties) Int(name string, def int) int {
	v, ok := p.lookup(name)
	if ok {
		if n, err := parseInt(v); err == nil {
			p.log.Debugf("%s = '%d'", name, n)
			return n
		}
	}
	p.log.Infof(logUndefined, name, def)
	return def
}

func parseInt(v string) (int, error) {
	base := 10
	switch {
	case strings.HasPrefix(v, "0x"):
		v, base = v[2:], 16
	case strings.HasPrefix(v, "0b"):
		v, base = v[2:], 2
	}
	n, err := strconv.ParseInt(v, base, strconv.IntSize)
	return int(n), err
}

// String returns the value unless it is empty or absent.
func (p *Properties) String(name, def string) string {
	if v, ok := p.lookup(name); ok && v != "" {
		p.log.Debugf("%s = \"%s\"", name, v)
		return v
	}
	p.log.Infof(logUndefined, name, def)
	return def
}

// StringList splits a value on ';', trimming elements and dropping empty
// ones. A missing value is an empty list.
func (p *Properties) StringList(name string) []string {
	v := p.String(name, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DatabaseURL picks the test network URL when the testnet flag is set.
func DatabaseURL(p *Properties) string {
	if p.Bool(PropTestnet, false) {
		return p.String(PropTestDBURL, "")
	}
	return p.String(PropDBURL, "")
}
