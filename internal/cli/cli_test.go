package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "empty",
			pairs: nil,
			want:  nil,
		},
		{
			name:  "single pair",
			pairs: []string{"CI=true"},
			want:  map[string]string{"CI": "true"},
		},
		{
			name:  "value containing equals",
			pairs: []string{"FLAGS=-a=1 -b=2"},
			want:  map[string]string{"FLAGS": "-a=1 -b=2"},
		},
		{
			name:    "missing equals",
			pairs:   []string{"NOVALUE"},
			wantErr: true,
		},
		{
			name:    "empty key",
			pairs:   []string{"=value"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseEnvFlags(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandsRegistered(t *testing.T) {
	t.Parallel()

	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}

	for _, want := range []string{"begin", "step", "end", "cleanup"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}

func TestStepCommand_RejectsDelimiterInKey(t *testing.T) {
	rootCmd.SetArgs([]string{"step", "bad;key", "--run", "true"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not contain")
}
