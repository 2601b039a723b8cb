package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_YAMLRoundTrip(t *testing.T) {
	t.Parallel()

	type Config struct {
		Timeout Duration `yaml:"timeout"`
	}

	original := Config{Timeout: Duration(30 * time.Second)}

	b, err := yaml.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(b), "30s")

	var result Config
	require.NoError(t, yaml.Unmarshal(b, &result))
	assert.Equal(t, original.Timeout, result.Timeout, "duration should survive YAML round-trip")
}

func TestDuration_UnmarshalYAML_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected Duration
	}{
		{"30s string", "timeout: 30s", Duration(30 * time.Second)},
		{"5m string", "timeout: 5m", Duration(5 * time.Minute)},
		{"1h string", "timeout: 1h", Duration(time.Hour)},
		{"complex", "timeout: 1h30m10s", Duration(time.Hour + 30*time.Minute + 10*time.Second)},
	}

	type Config struct {
		Timeout Duration `yaml:"timeout"`
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var result Config
			err := yaml.Unmarshal([]byte(tt.input), &result)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Timeout)
		})
	}
}

func TestDuration_UnmarshalYAML_NumericNanoseconds(t *testing.T) {
	t.Parallel()

	type Config struct {
		Timeout Duration `yaml:"timeout"`
	}

	var result Config
	err := yaml.Unmarshal([]byte("timeout: 30000000000"), &result)
	require.NoError(t, err)
	assert.Equal(t, Duration(30*time.Second), result.Timeout, "bare integer YAML value should be treated as nanoseconds")
}

func TestDuration_UnmarshalYAML_Invalid(t *testing.T) {
	t.Parallel()

	type Config struct {
		Timeout Duration `yaml:"timeout"`
	}

	var result Config
	err := yaml.Unmarshal([]byte("timeout: notaduration"), &result)
	assert.Error(t, err)
}

func TestDuration_Std(t *testing.T) {
	t.Parallel()

	d := Duration(30 * time.Second)
	assert.Equal(t, 30*time.Second, d.Std())
}
