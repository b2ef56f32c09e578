package settlementd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, `
operator: "0x0101010101010101010101010101010101010101"
admin:
  bearer_token: "secret"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":7090", cfg.ListenAddress)
	require.Equal(t, "settlement.db", cfg.DatabasePath)
	require.Equal(t, 24*time.Hour, cfg.AutoSettle.Timeout.Duration)
	require.Equal(t, "secret", cfg.Admin.BearerToken)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfigFile(t, `
listen: "127.0.0.1:9000"
database: "/var/lib/settlementd/state.db"
operator: "0x0202020202020202020202020202020202020202"
auto_settle:
  timeout: 36h
admin:
  bearer_token: "secret"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "/var/lib/settlementd/state.db", cfg.DatabasePath)
	require.Equal(t, 36*time.Hour, cfg.AutoSettle.Timeout.Duration)
}

func TestLoadConfigRequiresOperator(t *testing.T) {
	path := writeConfigFile(t, `
admin:
  bearer_token: "secret"
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRequiresBearerToken(t *testing.T) {
	path := writeConfigFile(t, `
operator: "0x0101010101010101010101010101010101010101"
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigTokenFromEnv(t *testing.T) {
	t.Setenv("SETTLEMENTD_TEST_TOKEN", "from-env")
	path := writeConfigFile(t, `
operator: "0x0101010101010101010101010101010101010101"
admin:
  bearer_token_env: "SETTLEMENTD_TEST_TOKEN"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Admin.BearerToken)
}

func TestLoadConfigTokenFromFile(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("from-file\n"), 0o600))
	path := writeConfigFile(t, `
operator: "0x0101010101010101010101010101010101010101"
admin:
  bearer_token_file: "`+tokenPath+`"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.Admin.BearerToken)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x0303030303030303030303030303030303030303")
	require.NoError(t, err)
	require.Equal(t, byte(0x03), addr[0])
	require.Equal(t, byte(0x03), addr[19])

	_, err = ParseAddress("")
	require.Error(t, err)
	_, err = ParseAddress("0x01")
	require.Error(t, err)
	_, err = ParseAddress("0xzz03030303030303030303030303030303030303")
	require.Error(t, err)
}
