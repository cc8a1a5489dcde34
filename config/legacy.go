package config

// legacy.go - the key=value config format used by config.cfg files.

import (
	"bufio"
	"bytes"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// legacyLine matches the first line of a key=value file.
var legacyLine = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*\s*=`)

// isLegacyFormat reports whether the first significant line of data is
// a key=value assignment rather than YAML.
func isLegacyFormat(data []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		return legacyLine.MatchString(line)
	}
	return false
}

// decodeLegacy parses key=value lines into fc.  Blank lines and lines
// starting with # or ; are skipped, a # elsewhere starts a comment, and
// every key may appear once.  Values go through the same YAML scalar
// decoding as the YAML format so both accept the same spellings.
func decodeLegacy(data []byte, fc *fileConfig) error {
	known := fileKeys()
	seen := make(map[string]int)
	mapping := &yaml.Node{Kind: yaml.MappingNode}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || line[0] == ';' {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("line %d: expected key=value, got %q", n, line)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !known[key] {
			return fmt.Errorf("line %d: unknown option %q", n, key)
		}
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("line %d: %q already set on line %d", n, key, prev)
		}
		seen[key] = n

		val := &yaml.Node{Kind: yaml.ScalarNode, Value: value, Line: n}
		if value == "" {
			val.Tag = "!!str"
		}
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key, Line: n}, val)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return mapping.Decode(fc)
}

// fileKeys returns the set of keys fileConfig understands.
func fileKeys() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(fileConfig{})
	for i := 0; i < t.NumField(); i++ {
		if tag, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ","); tag != "" {
			keys[tag] = true
		}
	}
	return keys
}
