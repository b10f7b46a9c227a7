package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("gitlab-url", "", "")
	flags.String("token", "", "")
	flags.Bool("insecure", false, "")
	flags.Int("lookback-days", 90, "")
	flags.Bool("security-data", false, "")
	flags.Bool("all-reports", false, "")
	flags.String("output", "./reports", "")
	flags.Int("per-page", 100, "")
	flags.Int("retries", 3, "")
	flags.String("log-level", "info", "")
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	flags := newFlags()
	require.NoError(t, flags.Set("gitlab-url", "https://gitlab.example.com"))
	require.NoError(t, flags.Set("token", "tok"))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.Analysis.LookbackDays)
	assert.Equal(t, "./reports", cfg.Analysis.OutputDir)
	assert.Equal(t, 100, cfg.Analysis.PerPage)
	assert.True(t, cfg.Analysis.ShowProgress)
	assert.Equal(t, 200, cfg.Client.MinIntervalMs)
	assert.Equal(t, 600, cfg.Client.PerMinuteBudget)
	assert.Equal(t, 3, cfg.Client.MaxRetries)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Publish.Enabled)
}

func TestLoad_FileWithFlagOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
gitlab:
  url: https://gitlab.example.com
  token: from-file
analysis:
  lookback_days: 30
  security_data: true
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	flags := newFlags()
	require.NoError(t, flags.Set("lookback-days", "7"))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.GitLab.Token)
	assert.True(t, cfg.Analysis.SecurityData)
	assert.Equal(t, "debug", cfg.LogLevel)
	// An explicitly set flag wins over the file.
	assert.Equal(t, 7, cfg.Analysis.LookbackDays)
}

func TestLoad_TokenFromEnvironment(t *testing.T) {
	t.Setenv("GITLAB_TOKEN", "env-token")

	flags := newFlags()
	require.NoError(t, flags.Set("gitlab-url", "https://gitlab.example.com"))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.GitLab.Token)
}

func TestLoad_FlagTokenBeatsEnvironment(t *testing.T) {
	t.Setenv("GITLAB_TOKEN", "env-token")

	flags := newFlags()
	require.NoError(t, flags.Set("gitlab-url", "https://gitlab.example.com"))
	require.NoError(t, flags.Set("token", "flag-token"))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "flag-token", cfg.GitLab.Token)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(flags *pflag.FlagSet)
	}{
		{"missing url", func(flags *pflag.FlagSet) {
			_ = flags.Set("token", "tok")
		}},
		{"missing token", func(flags *pflag.FlagSet) {
			_ = flags.Set("gitlab-url", "https://gitlab.example.com")
		}},
		{"per page too large", func(flags *pflag.FlagSet) {
			_ = flags.Set("gitlab-url", "https://gitlab.example.com")
			_ = flags.Set("token", "tok")
			_ = flags.Set("per-page", "500")
		}},
		{"negative retries", func(flags *pflag.FlagSet) {
			_ = flags.Set("gitlab-url", "https://gitlab.example.com")
			_ = flags.Set("token", "tok")
			_ = flags.Set("retries", "-1")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GITLAB_TOKEN", "")
			flags := newFlags()
			tt.setup(flags)

			_, err := Load("", flags)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	flags := newFlags()
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), flags)
	assert.Error(t, err)
}
