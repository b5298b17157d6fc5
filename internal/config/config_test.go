package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

// TestConfig represents a test configuration structure.
type TestConfig struct {
	Config string `help:"Config file path"`

	StringField   string        `toml:"test.string_field" env:"STRING_FIELD"`
	BoolField     bool          `toml:"test.bool_field" env:"BOOL_FIELD"`
	IntField      int           `toml:"test.int_field" env:"INT_FIELD"`
	FloatField    float64       `toml:"test.float_field" env:"FLOAT_FIELD"`
	DurationField time.Duration `toml:"test.duration_field" env:"DURATION_FIELD"`
	SliceField    []string      `toml:"test.slice_field" env:"SLICE_FIELD"`

	NestedString string `toml:"nested.value" env:"NESTED_VALUE"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeConfig(t, `
[test]
string_field = "hello world"
bool_field = true
int_field = 42
float_field = 2.5
duration_field = "7s"
slice_field = ["item1", "item2", "item3"]

[nested]
value = "nested value"
`)

	config := &TestConfig{Config: path}
	if err := LoadConfig(config, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.StringField != "hello world" {
		t.Errorf("StringField = %q", config.StringField)
	}
	if !config.BoolField {
		t.Error("BoolField = false, want true")
	}
	if config.IntField != 42 {
		t.Errorf("IntField = %d, want 42", config.IntField)
	}
	if config.FloatField != 2.5 {
		t.Errorf("FloatField = %v, want 2.5", config.FloatField)
	}
	if config.DurationField != 7*time.Second {
		t.Errorf("DurationField = %v, want 7s", config.DurationField)
	}
	if want := []string{"item1", "item2", "item3"}; !reflect.DeepEqual(config.SliceField, want) {
		t.Errorf("SliceField = %v, want %v", config.SliceField, want)
	}
	if config.NestedString != "nested value" {
		t.Errorf("NestedString = %q", config.NestedString)
	}
}

func TestLoadConfigIntegerDurationIsSeconds(t *testing.T) {
	path := writeConfig(t, "[test]\nduration_field = 3\n")
	config := &TestConfig{Config: path}
	if err := LoadConfig(config, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.DurationField != 3*time.Second {
		t.Errorf("DurationField = %v, want 3s", config.DurationField)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	t.Setenv("ENCODENODE_STRING_FIELD", "env string")
	t.Setenv("ENCODENODE_BOOL_FIELD", "false")
	t.Setenv("ENCODENODE_INT_FIELD", "123")
	t.Setenv("ENCODENODE_FLOAT_FIELD", "0.25")
	t.Setenv("ENCODENODE_DURATION_FIELD", "1m30s")
	t.Setenv("ENCODENODE_SLICE_FIELD", "a, b ,c")
	t.Setenv("ENCODENODE_NESTED_VALUE", "env nested")

	config := &TestConfig{BoolField: true}
	if err := LoadConfig(config, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.StringField != "env string" {
		t.Errorf("StringField = %q", config.StringField)
	}
	if config.BoolField {
		t.Error("BoolField = true, want false")
	}
	if config.IntField != 123 {
		t.Errorf("IntField = %d", config.IntField)
	}
	if config.FloatField != 0.25 {
		t.Errorf("FloatField = %v", config.FloatField)
	}
	if config.DurationField != 90*time.Second {
		t.Errorf("DurationField = %v", config.DurationField)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(config.SliceField, want) {
		t.Errorf("SliceField = %v, want %v", config.SliceField, want)
	}
	if config.NestedString != "env nested" {
		t.Errorf("NestedString = %q", config.NestedString)
	}
}

func TestLoadConfigInvalidEnvValue(t *testing.T) {
	t.Setenv("ENCODENODE_DURATION_FIELD", "soon")
	if err := LoadConfig(&TestConfig{}, nil); err == nil {
		t.Fatal("LoadConfig accepted an invalid duration")
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfig(t, `
[test]
string_field = "toml value"
int_field = 100
slice_field = ["toml1", "toml2"]
`)
	t.Setenv("ENCODENODE_STRING_FIELD", "env override")
	t.Setenv("ENCODENODE_INT_FIELD", "200")

	config := &TestConfig{Config: path}

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntVar(&config.IntField, "int-field", 0, "")
	if err := cmd.Flags().Set("int-field", "300"); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(config, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.StringField != "env override" {
		t.Errorf("StringField = %q, want env override", config.StringField)
	}
	if config.IntField != 300 {
		t.Errorf("IntField = %d, want 300 from CLI", config.IntField)
	}
	if want := []string{"toml1", "toml2"}; !reflect.DeepEqual(config.SliceField, want) {
		t.Errorf("SliceField = %v, want %v", config.SliceField, want)
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"level1": map[string]any{
			"level2": map[string]any{
				"value": "nested_value",
			},
			"simple": "simple_value",
		},
		"root": "root_value",
	}

	tests := []struct {
		path     string
		expected any
	}{
		{"root", "root_value"},
		{"level1.simple", "simple_value"},
		{"level1.level2.value", "nested_value"},
		{"nonexistent", nil},
		{"level1.nonexistent", nil},
		{"root.deeper", nil},
	}

	for _, tt := range tests {
		if result := getNestedValue(data, tt.path); result != tt.expected {
			t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, result, tt.expected)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	config := &TestConfig{Config: filepath.Join(t.TempDir(), "nonexistent.toml")}
	if err := LoadConfig(config, nil); err != nil {
		t.Fatalf("LoadConfig should not fail for missing file: %v", err)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := writeConfig(t, "[test\ninvalid toml syntax\n")
	if err := LoadConfig(&TestConfig{Config: path}, nil); err == nil {
		t.Fatal("LoadConfig should fail for invalid TOML")
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "warn"
format = "json"
jobs = "debug"

[logging.modules]
ffmpeg = "error"
process = "debug"
`)

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("global = %q/%q", cfg.Level, cfg.Format)
	}
	want := map[string]string{"jobs": "debug", "ffmpeg": "error", "process": "debug"}
	if !reflect.DeepEqual(cfg.Modules, want) {
		t.Errorf("Modules = %v, want %v", cfg.Modules, want)
	}

	def := LoadLoggingConfig("")
	if def.Level != "info" || def.Format != "text" || len(def.Modules) != 0 {
		t.Errorf("defaults = %+v", def)
	}
}
