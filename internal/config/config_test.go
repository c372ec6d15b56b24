package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// writeRequiredFiles creates empty cert/key/CA files under dir — Config's
// "file" validator tags only check existence, not contents, so these are
// enough to satisfy CertFile/KeyFile/ClientCA's required,file rule.
func writeRequiredFiles(t *testing.T, dir string) (certFile, keyFile, caFile string) {
	t.Helper()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	caFile = filepath.Join(dir, "ca.pem")
	for _, f := range []string{certFile, keyFile, caFile} {
		require.NoError(t, os.WriteFile(f, []byte("placeholder"), 0o600))
	}
	return certFile, keyFile, caFile
}

func writeConfigFile(t *testing.T, dir string, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "kave.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func testFlagSet() *pflag.FlagSet {
	def := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("listen-addr", def.ListenAddr, "")
	fs.String("cert-file", "", "")
	fs.String("key-file", "", "")
	fs.String("client-ca", "", "")
	fs.Int("bloom-n", def.BloomN, "")
	fs.Float64("bloom-p", def.BloomP, "")
	fs.String("data-dir", def.DataDir, "")
	fs.String("log-level", def.LogLevel, "")
	return fs
}

func TestLoad_DefaultsSurviveWhenUnset(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, caFile := writeRequiredFiles(t, dir)
	configFile := writeConfigFile(t, dir, "cert_file: "+certFile+"\nkey_file: "+keyFile+"\nclient_ca: "+caFile+"\n")

	cfg, err := Load(configFile, nil)
	require.NoError(t, err)

	def := DefaultConfig()
	require.Equal(t, def.ListenAddr, cfg.ListenAddr)
	require.Equal(t, def.BloomN, cfg.BloomN)
	require.Equal(t, def.BloomP, cfg.BloomP)
	require.Equal(t, def.LogLevel, cfg.LogLevel)
	require.Equal(t, certFile, cfg.CertFile)
}

func TestLoad_ConfigFileOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, caFile := writeRequiredFiles(t, dir)
	configFile := writeConfigFile(t, dir, `
listen_addr: 127.0.0.1:9999
bloom_n: 2048
cert_file: `+certFile+`
key_file: `+keyFile+`
client_ca: `+caFile+`
`)

	cfg, err := Load(configFile, nil)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
	require.Equal(t, 2048, cfg.BloomN)
}

func TestLoad_EnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, caFile := writeRequiredFiles(t, dir)
	configFile := writeConfigFile(t, dir, `
bloom_n: 2048
cert_file: `+certFile+`
key_file: `+keyFile+`
client_ca: `+caFile+`
`)

	t.Setenv("KAVE_BLOOM_N", "4096")

	cfg, err := Load(configFile, nil)
	require.NoError(t, err)
	require.Equal(t, 4096, cfg.BloomN, "env must win over the config file")
}

func TestLoad_ExplicitFlagOutranksEnvAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, caFile := writeRequiredFiles(t, dir)
	configFile := writeConfigFile(t, dir, `
bloom_n: 2048
cert_file: `+certFile+`
key_file: `+keyFile+`
client_ca: `+caFile+`
`)
	t.Setenv("KAVE_BLOOM_N", "4096")

	fs := testFlagSet()
	require.NoError(t, fs.Set("bloom-n", "8192"))

	cfg, err := Load(configFile, fs)
	require.NoError(t, err)
	require.Equal(t, 8192, cfg.BloomN, "an explicitly-set flag must outrank both env and the config file")
}

func TestLoad_UnsetFlagDoesNotOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, caFile := writeRequiredFiles(t, dir)
	configFile := writeConfigFile(t, dir, `
cert_file: `+certFile+`
key_file: `+keyFile+`
client_ca: `+caFile+`
`)
	t.Setenv("KAVE_BLOOM_N", "4096")

	fs := testFlagSet() // bloom-n registered but never Set, so not "Changed"

	cfg, err := Load(configFile, fs)
	require.NoError(t, err)
	require.Equal(t, 4096, cfg.BloomN)
}

func TestLoad_MissingConfigFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"), nil)
	require.Error(t, err)
}

func TestLoad_ValidationFailsWithoutRequiredCertPaths(t *testing.T) {
	_, err := Load("", nil)
	require.Error(t, err, "CertFile/KeyFile/ClientCA are required and unset by default")
}

func TestLoad_ValidationFailsOnBadLogLevel(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, caFile := writeRequiredFiles(t, dir)
	configFile := writeConfigFile(t, dir, `
log_level: verbose
cert_file: `+certFile+`
key_file: `+keyFile+`
client_ca: `+caFile+`
`)

	_, err := Load(configFile, nil)
	require.Error(t, err)
}

func TestLoad_ValidationFailsOnOutOfRangeBloomP(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile, caFile := writeRequiredFiles(t, dir)
	configFile := writeConfigFile(t, dir, `
bloom_p: 1.5
cert_file: `+certFile+`
key_file: `+keyFile+`
client_ca: `+caFile+`
`)

	_, err := Load(configFile, nil)
	require.Error(t, err)
}

func TestWatchReload_ErrorsOnMissingPath(t *testing.T) {
	_, err := WatchReload(filepath.Join(t.TempDir(), "missing.yaml"), nil, func(Config) {}, func(error) {})
	require.Error(t, err)
}
