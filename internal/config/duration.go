package config

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads from YAML and JSON as either a Go
// duration string or a bare integer of seconds:
//
//	window: 60
//	interval: "15s"
type Duration time.Duration

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalText renders d as a Go duration string. Both the JSON and YAML
// encoders use it.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText accepts "" as zero, an integer as seconds, or anything
// time.ParseDuration understands.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	switch {
	case s == "":
		*d = 0
		return nil
	case isDigits(s):
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if node.Tag == "!!null" {
		*d = 0
		return nil
	}
	return d.UnmarshalText([]byte(node.Value))
}

// UnmarshalJSON implements json.Unmarshaler; numbers are seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = 0
		return nil
	}
	if s, err := strconv.Unquote(string(b)); err == nil {
		b = []byte(s)
	}
	return d.UnmarshalText(b)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
