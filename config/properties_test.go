package config

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func props(values map[string]string) *Properties {
	log, _ := test.NewNullLogger()
	return NewProperties(values, log)
}

func TestBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"ON", false, true},
		{"Active", false, true},
		{"yes", false, true},
		{"false", true, false},
		{"0", true, false},
		{"off", true, false},
		{"No", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
		{"", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			p := props(map[string]string{"flag": tt.value})
			assert.Equal(t, tt.want, p.Bool("flag", tt.def))
		})
	}

	assert.True(t, props(nil).Bool("absent", true))
}

func TestInt(t *testing.T) {
	tests := []struct {
		value string
		def   int
		want  int
	}{
		{"0x1F", 0, 31},
		{"0x1f", 0, 31},
		{"0X1F", 7, 7},
		{"0B101", 7, 7},
		{" 42", 7, 7},
		{"0b101", 0, 5},
		{"42", 0, 42},
		{"-7", 0, -7},
		{"xyz", 7, 7},
		{"0x", 7, 7},
		{"0b102", 7, 7},
		{"", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			p := props(map[string]string{"n": tt.value})
			assert.Equal(t, tt.want, p.Int("n", tt.def))
		})
	}

	assert.Equal(t, 50000, props(nil).Int(PropPageSize, 50000))
}

func TestString(t *testing.T) {
	p := props(map[string]string{"set": "value", "empty": ""})
	assert.Equal(t, "value", p.String("set", "def"))
	assert.Equal(t, "def", p.String("empty", "def"))
	assert.Equal(t, "def", p.String("absent", "def"))
}

func TestStringList(t *testing.T) {
	p := props(map[string]string{
		"list":   "a; b ;;c",
		"blanks": " ; ;",
		"empty":  "",
	})
	assert.Equal(t, []string{"a", "b", "c"}, p.StringList("list"))
	assert.Empty(t, p.StringList("blanks"))
	assert.Empty(t, p.StringList("empty"))
	assert.Empty(t, p.StringList("absent"))
}

func TestLookupsLogOutcome(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	p := NewProperties(map[string]string{"n": "12"}, log)

	p.Int("n", 0)
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.Equal(t, "n = '12'", hook.LastEntry().Message)

	p.Int("missing", 9)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "missing undefined. Default: 9", hook.LastEntry().Message)
}

func TestDatabaseURL(t *testing.T) {
	values := map[string]string{
		PropDBURL:     "mariadb://main",
		PropTestDBURL: "mariadb://test",
	}
	assert.Equal(t, "mariadb://main", DatabaseURL(props(values)))

	values[PropTestnet] = "yes"
	assert.Equal(t, "mariadb://test", DatabaseURL(props(values)))
}
