package txsigner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("no io during construction", func(t *testing.T) {
		client := newStubClient()
		opener := &countingOpener{dev: newStubDevice(t)}

		local, err := New(Config{Type: KindLocal, RPCURL: DefaultRPCURL, PrivateKey: testPrivateKey, Client: client})
		require.NoError(t, err)
		ledger, err := New(Config{Type: KindLedger, RPCURL: DefaultRPCURL, Client: client, DeviceOpener: opener.Open})
		require.NoError(t, err)

		assert.Zero(t, client.TotalCalls())
		assert.Zero(t, opener.Opens())
		assert.Equal(t, KindLocal, local.Kind())
		assert.Equal(t, KindLedger, ledger.Kind())

		hw, ok := ledger.(*HardwareSigner)
		require.True(t, ok)
		assert.Equal(t, StateDisconnected, hw.State())
		assert.Equal(t, accounts.DefaultBaseDerivationPath, hw.Path())

		require.NoError(t, local.Close())
		require.NoError(t, ledger.Close())
	})

	t.Run("dialled provider is owned and lazy", func(t *testing.T) {
		signer, err := New(Config{Type: KindLocal, RPCURL: "http://127.0.0.1:1", PrivateKey: testPrivateKey})
		require.NoError(t, err)

		p, ok := signer.Provider().(*Provider)
		require.True(t, ok)
		assert.Equal(t, "http://127.0.0.1:1", p.URL())

		require.NoError(t, signer.Close())
		_, err = p.ChainID(context.Background())
		require.ErrorIs(t, err, ErrConnection)
	})

	t.Run("local without key", func(t *testing.T) {
		signer, err := New(Config{Type: KindLocal, RPCURL: DefaultRPCURL})
		require.ErrorIs(t, err, ErrConfiguration)
		assert.Nil(t, signer)
	})

	t.Run("invalid key is not echoed", func(t *testing.T) {
		key := "0xnot-a-valid-private-key"
		signer, err := New(Config{Type: KindLocal, RPCURL: DefaultRPCURL, PrivateKey: key})
		require.ErrorIs(t, err, ErrConfiguration)
		assert.Nil(t, signer)
		assert.NotContains(t, err.Error(), key)
	})

	t.Run("unknown type", func(t *testing.T) {
		signer, err := New(Config{Type: "trezor", RPCURL: DefaultRPCURL})
		require.ErrorIs(t, err, ErrUnknownSignerType)
		require.ErrorIs(t, err, ErrConfiguration)
		assert.Nil(t, signer)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := New(Config{RPCURL: DefaultRPCURL})
		require.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("invalid rpc url", func(t *testing.T) {
		_, err := New(Config{Type: KindLedger, RPCURL: "not a url"})
		require.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("invalid derivation path", func(t *testing.T) {
		_, err := New(Config{Type: KindLedger, RPCURL: DefaultRPCURL, DerivationPath: "44'/sixty'/0'"})
		require.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestParseDerivationPath(t *testing.T) {
	tcs := []struct {
		in   string
		want string
	}{
		{"", "m/44'/60'/0'/0/0"},
		{"44'/60'/0'/0/0", "m/44'/60'/0'/0/0"},
		{"m/44'/60'/1'/0/3", "m/44'/60'/1'/0/3"},
		{" 44'/60'/0'/0/7 ", "m/44'/60'/0'/0/7"},
	}
	for _, tc := range tcs {
		t.Run(tc.in, func(t *testing.T) {
			path, err := ParseDerivationPath(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, path.String())
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SIGNER_TYPE", "Ledger")
	t.Setenv("RPC_URL", "https://sepolia.base.org")
	t.Setenv("PRIVATE_KEY", "")
	t.Setenv("DERIVATION_PATH", "44'/60'/0'/0/2")
	t.Setenv("DEVICE_TIMEOUT", "45s")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, KindLedger, cfg.Type)
	assert.Equal(t, "https://sepolia.base.org", cfg.RPCURL)
	assert.Equal(t, "44'/60'/0'/0/2", cfg.DerivationPath)
	assert.Equal(t, 45*time.Second, cfg.DeviceTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("profile", func(t *testing.T) {
		path := filepath.Join(dir, "signer.yaml")
		content := strings.Join([]string{
			"type: local",
			"private_key: " + testPrivateKey,
			"device_timeout: 30s",
		}, "\n")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := LoadConfigFile(path)
		require.NoError(t, err)
		assert.Equal(t, KindLocal, cfg.Type)
		assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
		assert.Equal(t, testPrivateKey, cfg.PrivateKey)
		assert.Equal(t, 30*time.Second, cfg.DeviceTimeout)
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfigFile(filepath.Join(dir, "absent.yaml"))
		require.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("type: [local"), 0o600))
		_, err := LoadConfigFile(path)
		require.ErrorIs(t, err, ErrConfiguration)
	})
}
