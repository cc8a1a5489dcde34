package config

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"0", 0, false},
		{"1000", 1000, false},
		{" 42 ", 42, false},
		{"10B", 10, false},
		{"1K", 1000, false},
		{"1KB", 1000, false},
		{"4KiB", 4096, false},
		{"4ki", 4096, false},
		{"10MB", 10 * MB, false},
		{"1Gi", GiB, false},
		{"1.5Ki", 1536, false},
		{"", 0, true},
		{"-1", 0, true},
		{"12XB", 0, true},
		{"abc", 0, true},
		{"99999999999999999999", 0, true},
		{"9999999999Ti", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseByteSize(%q) error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseByteSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestByteSize_String(t *testing.T) {
	tests := []struct {
		in   ByteSize
		want string
	}{
		{0, "0B"},
		{1000, "1000B"},
		{4096, "4KiB"},
		{1536, "1.50KiB"},
		{10 * MiB, "10MiB"},
		{2 * GiB, "2GiB"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", int64(tt.in), got, tt.want)
		}
	}
}

// TestByteSize_FlagValue verifies ByteSize satisfies the pflag.Value
// contract used by --max-file-size.
func TestByteSize_FlagValue(t *testing.T) {
	var b ByteSize
	if err := b.Set("64KiB"); err != nil {
		t.Fatal(err)
	}
	if b != 64*KiB {
		t.Errorf("Set: got %d", b)
	}
	if b.Type() != "size" {
		t.Errorf("Type() = %q", b.Type())
	}
	if err := b.Set("lots"); err == nil {
		t.Error("expected error for invalid size")
	}
	if b != 64*KiB {
		t.Error("failed Set must not modify the value")
	}
}

func TestByteSize_YAML(t *testing.T) {
	var doc struct {
		A ByteSize `yaml:"a"`
		B ByteSize `yaml:"b"`
	}
	if err := yaml.Unmarshal([]byte("a: 1000\nb: 2MiB\n"), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.A != 1000 || doc.B != 2*MiB {
		t.Errorf("got a=%d b=%d", doc.A, doc.B)
	}

	if err := yaml.Unmarshal([]byte("a: [1, 2]\n"), &doc); err == nil {
		t.Error("expected error for sequence value")
	}
	if err := yaml.Unmarshal([]byte("a: -5\n"), &doc); err == nil {
		t.Error("expected error for negative value")
	}
}
