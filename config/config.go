package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fullstorydev/quicksync/schema"
)

type Config struct {
	// Free-form typed properties, read through Properties. Nested tables
	// are flattened into dotted names.
	Properties map[string]interface{} `toml:"properties"`

	// Entity types available to the dump.
	Entities []EntityConfig `toml:"entity"`

	// Where the finished dump is shipped, if anywhere.
	Storage StorageConfig `toml:"storage"`
}

type EntityConfig struct {
	Namespace string        `toml:"namespace"`
	Name      string        `toml:"name"`
	Extends   string        `toml:"extends"`
	Fields    []FieldConfig `toml:"fields"`
}

type FieldConfig struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"`
}

type StorageConfig struct {
	// "", "local", "s3" or "gcs". Empty keeps the dump where it was written.
	Provider string      `toml:"provider"`
	S3       S3Config    `toml:"s3"`
	GCS      GCSConfig   `toml:"gcs"`
	Local    LocalConfig `toml:"local"`
}

type S3Config struct {
	Bucket  string   `toml:"bucket"`
	Region  string   `toml:"region"`
	Timeout duration `toml:"timeout"`
}

type GCSConfig struct {
	Bucket  string   `toml:"bucket"`
	Timeout duration `toml:"timeout"`
}

type LocalConfig struct {
	SaveDir string `toml:"savedir"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func Load(filename string) (*Config, error) {
	var conf Config

	md, err := toml.DecodeFile(filename, &conf)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", filename)
	}
	for _, key := range md.Undecoded() {
		if len(key) > 0 && key[0] == "properties" {
			continue
		}
		logrus.WithField("key", key.String()).Warn("unknown config key ignored")
	}
	return &conf, nil
}

// Props returns the typed accessor over the [properties] table.
func (c *Config) Props(log logrus.FieldLogger) *Properties {
	values := make(map[string]string)
	flatten("", c.Properties, values)
	return NewProperties(values, log)
}

func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch x := v.(type) {
		case map[string]interface{}:
			flatten(name, x, out)
		case []interface{}:
			parts := make([]string, len(x))
			for i, p := range x {
				parts[i] = fmt.Sprint(p)
			}
			out[name] = strings.Join(parts, ";")
		default:
			out[name] = fmt.Sprint(x)
		}
	}
}

// Schema converts the [[entity]] tables into registry entries. A field with
// an unrecognised kind is kept as opaque and logged; config parsing never
// fails the dump.
func (c *Config) Schema(log logrus.FieldLogger) []schema.Entity {
	if log == nil {
		log = logrus.StandardLogger()
	}
	entities := make([]schema.Entity, 0, len(c.Entities))
	for _, ec := range c.Entities {
		e := schema.Entity{Namespace: ec.Namespace, Name: ec.Name, Extends: ec.Extends}
		for _, fc := range ec.Fields {
			kind, ok := schema.ParseKind(fc.Kind)
			if !ok {
				log.WithFields(logrus.Fields{"entity": ec.Name, "field": fc.Name, "kind": fc.Kind}).
					Warn("unknown field kind, treating as opaque")
				kind = schema.KindOpaque
			}
			e.Fields = append(e.Fields, schema.Field{Name: fc.Name, Kind: kind})
		}
		entities = append(entities, e)
	}
	return entities
}

// Keys lists the flattened property names, sorted. Used for diagnostics.
func (c *Config) Keys() []string {
	values := make(map[string]string)
	flatten("", c.Properties, values)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
