package options_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookworks/hookrun/options"
)

func TestNewRunOptions(t *testing.T) {
	projectRoot := t.TempDir()

	opts, err := options.NewRunOptions(projectRoot)
	require.NoError(t, err)

	assert.Equal(t, projectRoot, opts.ProjectRoot)
	assert.True(t, filepath.IsAbs(opts.ProjectRoot))
	assert.NotNil(t, opts.Logger)
	assert.Equal(t, filepath.Join(projectRoot, ".hookrun", "cache"), opts.CacheDir())
}

func TestNewRunOptionsEnvToggles(t *testing.T) {
	testCases := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, opts *options.RunOptions)
	}{
		{
			name: "disable kill switch",
			env:  map[string]string{options.DisableEnvName: "1"},
			check: func(t *testing.T, opts *options.RunOptions) {
				assert.True(t, opts.Disabled)
			},
		},
		{
			name: "disable accepts true",
			env:  map[string]string{options.DisableEnvName: "true"},
			check: func(t *testing.T, opts *options.RunOptions) {
				assert.True(t, opts.Disabled)
			},
		},
		{
			name: "disable rejects other values",
			env:  map[string]string{options.DisableEnvName: "0"},
			check: func(t *testing.T, opts *options.RunOptions) {
				assert.False(t, opts.Disabled)
			},
		},
		{
			name: "no cache",
			env:  map[string]string{options.NoCacheEnvName: "yes"},
			check: func(t *testing.T, opts *options.RunOptions) {
				assert.True(t, opts.NoCache)
			},
		},
		{
			name: "verbose on",
			env:  map[string]string{options.VerboseEnvName: "1"},
			check: func(t *testing.T, opts *options.RunOptions) {
				assert.True(t, opts.Verbose)
			},
		},
		{
			// The env var overrides the terminal-based default in both
			// directions, so an explicit "0" always turns streaming off.
			name: "verbose forced off",
			env:  map[string]string{options.VerboseEnvName: "0"},
			check: func(t *testing.T, opts *options.RunOptions) {
				assert.False(t, opts.Verbose)
			},
		},
		{
			name: "checkpoint correlation",
			env: map[string]string{
				options.CheckpointTypeEnvName: "manual",
				options.CheckpointIDEnvName:   "ckpt-1",
			},
			check: func(t *testing.T, opts *options.RunOptions) {
				assert.Equal(t, "manual", opts.CheckpointType)
				assert.Equal(t, "ckpt-1", opts.CheckpointID)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for key, value := range tc.env {
				t.Setenv(key, value)
			}

			opts, err := options.NewRunOptions(t.TempDir())
			require.NoError(t, err)

			tc.check(t, opts)
		})
	}
}
