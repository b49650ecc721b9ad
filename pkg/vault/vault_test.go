package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lothbrok303/lazabot-ubu/pkg/captcha"
	"github.com/Lothbrok303/lazabot-ubu/pkg/crypto"
)

func testEnvelope(t *testing.T) *crypto.Envelope {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	env, err := crypto.NewEnvelope(key)
	require.NoError(t, err)
	return env
}

func TestSaveLoadRoundTrip(t *testing.T) {
	env := testEnvelope(t)
	path := filepath.Join(t.TempDir(), "vault", "credentials.bin")

	v := New()
	v.Accounts["main"] = Account{Username: "alice", Password: "hunter2", Email: "a@example.com"}
	v.Captcha = &CaptchaCredentials{APIKey: "cap-key"}
	v.Proxies["dc1"] = ProxyCredentials{Host: "10.0.0.1", Port: 8080, Type: "http"}

	require.NoError(t, v.Save(path, env))

	loaded, err := Load(path, env)
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.Accounts["main"].Username)
	assert.Equal(t, "cap-key", loaded.Captcha.APIKey)
	assert.Equal(t, 8080, loaded.Proxies["dc1"].Port)
	assert.False(t, loaded.LastUpdated.IsZero())
}

func TestVaultFileIsSealed(t *testing.T) {
	env := testEnvelope(t)
	path := filepath.Join(t.TempDir(), "credentials.bin")

	v := New()
	v.Accounts["main"] = Account{Username: "alice", Password: "hunter2"}
	require.NoError(t, v.Save(path, env))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")
}

func TestLoadMissingVault(t *testing.T) {
	env := testEnvelope(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.bin"), env)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadWrongKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.bin")

	v := New()
	require.NoError(t, v.Save(path, testEnvelope(t)))

	_, err := Load(path, testEnvelope(t))
	assert.Error(t, err)
}

func TestAccountIDsSorted(t *testing.T) {
	v := New()
	v.Accounts["charlie"] = Account{}
	v.Accounts["alpha"] = Account{}
	v.Accounts["bravo"] = Account{}

	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, v.AccountIDs())
}

func TestLoadFromEnvSingular(t *testing.T) {
	key, err := crypto.GenerateKeyHex()
	require.NoError(t, err)
	t.Setenv(crypto.MasterKeyEnv, key)
	t.Setenv(UsernameEnv, "alice")
	t.Setenv(PasswordEnv, "secret")
	t.Setenv(captcha.APIKeyEnv, "cap")
	t.Setenv(CaptchaEndpointEnv, "https://solver.example.com")

	v := LoadFromEnv()
	require.Contains(t, v.Accounts, "default")
	assert.Equal(t, "alice", v.Accounts["default"].Username)
	require.NotNil(t, v.Captcha)
	assert.Equal(t, "cap", v.Captcha.APIKey)
	assert.Equal(t, "https://solver.example.com", v.Captcha.Endpoint)
	assert.Equal(t, key, v.MasterKey.Key)
	assert.False(t, v.MasterKey.CreatedAt.IsZero())
}

func TestLoadFromEnvNumbered(t *testing.T) {
	t.Setenv(UsernameEnv+"_1", "alice")
	t.Setenv(PasswordEnv+"_1", "pw1")
	t.Setenv(UsernameEnv+"_2", "bob")
	t.Setenv(PasswordEnv+"_2", "pw2")

	v := LoadFromEnv()
	assert.Len(t, v.Accounts, 2)
	assert.Equal(t, "bob", v.Accounts["account-2"].Username)
}

func TestValidateEnvReportsAllProblems(t *testing.T) {
	t.Setenv(crypto.MasterKeyEnv, "")
	t.Setenv(UsernameEnv, "")
	t.Setenv(UsernameEnv+"_1", "")
	t.Setenv(captcha.APIKeyEnv, "")

	problems := ValidateEnv()
	keys := make(map[string]bool)
	for _, p := range problems {
		keys[p.Key] = true
	}
	assert.True(t, keys[crypto.MasterKeyEnv])
	assert.True(t, keys[UsernameEnv])
	assert.True(t, keys[captcha.APIKeyEnv])
}

func TestValidateEnvCleanEnvironment(t *testing.T) {
	key, err := crypto.GenerateKeyHex()
	require.NoError(t, err)
	t.Setenv(crypto.MasterKeyEnv, key)
	t.Setenv(UsernameEnv, "alice")
	t.Setenv(PasswordEnv, "pw")
	t.Setenv(captcha.APIKeyEnv, "cap")

	assert.Empty(t, ValidateEnv())
}
