package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"p4fpga/internal/sema"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"P4FPGA_LANG", "P4FPGA_OUTPUT_DIR", "P4FPGA_DIAG_FORMAT", "P4FPGA_VERBOSE"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "p4fpga.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "p4-16", cfg.Lang)
	require.Equal(t, "", cfg.OutputDir)
	require.Equal(t, "text", cfg.DiagFormat)
	require.False(t, cfg.Verbose)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "lang: p4-14\noutput_dir: build\ndiag_format: json\nverbose: true\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, &Config{Lang: "p4-14", OutputDir: "build", DiagFormat: "json", Verbose: true}, cfg)

	d, err := cfg.Dialect()
	require.NoError(t, err)
	require.Equal(t, sema.P4_14, d)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "output_dir: out\n"))
	require.NoError(t, err)
	require.Equal(t, "p4-16", cfg.Lang)
	require.Equal(t, "text", cfg.DiagFormat)
	require.Equal(t, "out", cfg.OutputDir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "lang: p4-14\noutput_dir: build\n")
	t.Setenv("P4FPGA_LANG", "p4-16")
	t.Setenv("P4FPGA_OUTPUT_DIR", "-")
	t.Setenv("P4FPGA_VERBOSE", "1")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "p4-16", cfg.Lang)
	require.Equal(t, "-", cfg.OutputDir)
	require.True(t, cfg.Verbose)
}

func TestLoadWithoutDefaultFile(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "lang: [unterminated\n"))
	require.ErrorContains(t, err, "failed to parse config file")

	_, err = Load(writeConfig(t, "lang: p4-18\n"))
	require.ErrorContains(t, err, "unknown language version")

	_, err = Load(writeConfig(t, "diag_format: xml\n"))
	require.ErrorContains(t, err, "diag_format must be text or json")
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
