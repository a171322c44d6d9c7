package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type envTestConfig struct {
	Port     int      `env:"BROADCAST_SPACE_TEST_PORT" envDefault:"123"`
	Origins  []string `env:"BROADCAST_SPACE_TEST_ORIGINS" envDefault:"*" envSeparator:","`
	Required string   `env:"BROADCAST_SPACE_TEST_REQUIRED"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	require.NoError(t, ParseEnv(&cfg))
	require.Equal(t, 123, cfg.Port)
	require.Equal(t, []string{"*"}, cfg.Origins)
}

func TestParseEnvReadsSeparatedLists(t *testing.T) {
	t.Setenv("BROADCAST_SPACE_TEST_ORIGINS", "https://a.example,https://b.example")

	var cfg envTestConfig
	require.NoError(t, ParseEnv(&cfg))
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins)
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("BROADCAST_SPACE_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse env:")
}
