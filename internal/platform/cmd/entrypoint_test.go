package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testConfig struct {
	Address string `env:"CMD_TEST_ADDRESS" envDefault:"127.0.0.1:8080"`
	Mode    string `env:"CMD_TEST_MODE" envDefault:"server"`
}

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("CMD_TEST_ADDRESS", "env:9000")
	t.Setenv("CMD_TEST_MODE", "env-mode")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfgRef := testConfig{}
	require.NoError(t, ParseConfig(&cfgRef))
	fs.StringVar(&cfgRef.Address, "address", cfgRef.Address, "address")
	fs.StringVar(&cfgRef.Mode, "mode", cfgRef.Mode, "mode")

	require.NoError(t, ParseArgs(fs, []string{"-address", "flag:9001"}))
	require.Equal(t, "flag:9001", cfgRef.Address)
	require.Equal(t, "env-mode", cfgRef.Mode)
}

func TestParseConfigRejectsNilTarget(t *testing.T) {
	require.Error(t, ParseConfig[testConfig](nil))
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	require.Error(t, ParseArgs(nil, []string{}))
}

func TestRunWithTelemetryRejectsMissingInputs(t *testing.T) {
	noop := func(context.Context, *zap.Logger) error { return nil }
	require.Error(t, RunWithTelemetry(context.Background(), "", noop))
	require.Error(t, RunWithTelemetry(context.Background(), ServiceGateway, nil))
}

func TestRunWithTelemetryPassesLoggerAndError(t *testing.T) {
	t.Setenv("BROADCAST_SPACE_OTEL_ENDPOINT", "")
	want := errors.New("boom")

	var gotLogger *zap.Logger
	err := RunWithTelemetryAndOptions(context.Background(), ServiceGateway, RunOptions{Logger: zap.NewNop()}, func(_ context.Context, logger *zap.Logger) error {
		gotLogger = logger
		return want
	})
	require.ErrorIs(t, err, want)
	require.NotNil(t, gotLogger)
}
