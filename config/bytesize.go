package config

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes that can be written as a plain number or
// with a unit suffix: "1000", "64KiB", "10MB", "1.5Gi".
//
// Binary units (Ki, Mi, Gi, Ti, with optional B) multiply by 1024;
// decimal units (K, M, G, T, with optional B) multiply by 1000.
//
// ByteSize implements pflag.Value, so it binds directly to a flag, and
// yaml.Unmarshaler, so config files accept the same spellings.
type ByteSize int64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

var byteSizePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

var unitMultipliers = map[string]ByteSize{
	"":    B,
	"b":   B,
	"k":   KB,
	"kb":  KB,
	"m":   MB,
	"mb":  MB,
	"g":   GB,
	"gb":  GB,
	"t":   TB,
	"tb":  TB,
	"ki":  KiB,
	"kib": KiB,
	"mi":  MiB,
	"mib": MiB,
	"gi":  GiB,
	"gib": GiB,
	"ti":  TiB,
	"tib": TiB,
}

// ParseByteSize parses a human-readable byte size.  Negative values
// are not accepted.
func ParseByteSize(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	m := byteSizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	num, unit := m[1], strings.ToLower(m[2])

	multiplier, ok := unitMultipliers[unit]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit %q", m[2])
	}

	if strings.Contains(num, ".") {
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in byte size %q", num)
		}
		v := f * float64(multiplier)
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("byte size %q overflows", s)
		}
		return ByteSize(v), nil
	}

	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte size %q", num)
	}
	if n > 0 && ByteSize(n) > ByteSize(math.MaxInt64)/multiplier {
		return 0, fmt.Errorf("byte size %q overflows", s)
	}
	return ByteSize(n) * multiplier, nil
}

// Int64 returns the size in bytes.
func (b ByteSize) Int64() int64 { return int64(b) }

// String returns a human-readable representation.  Exact multiples of
// a binary unit print without a fraction.
func (b ByteSize) String() string {
	switch {
	case b >= TiB:
		return formatUnit(b, TiB, "TiB")
	case b >= GiB:
		return formatUnit(b, GiB, "GiB")
	case b >= MiB:
		return formatUnit(b, MiB, "MiB")
	case b >= KiB:
		return formatUnit(b, KiB, "KiB")
	default:
		return fmt.Sprintf("%dB", int64(b))
	}
}

func formatUnit(b, unit ByteSize, suffix string) string {
	if b%unit == 0 {
		return fmt.Sprintf("%d%s", int64(b/unit), suffix)
	}
	return fmt.Sprintf("%.2f%s", float64(b)/float64(unit), suffix)
}

// Set implements pflag.Value.
func (b *ByteSize) Set(s string) error {
	v, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Type implements pflag.Value.
func (b *ByteSize) Type() string { return "size" }

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	return b.Set(string(text))
}

// UnmarshalYAML implements yaml.Unmarshaler, accepting both integer
// and string scalars.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: byte size must be a scalar", value.Line)
	}
	if err := b.Set(value.Value); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	return nil
}
