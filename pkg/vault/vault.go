// Package vault keeps account credentials, solver keys, and proxy
// credentials in one sealed file on disk.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Lothbrok303/lazabot-ubu/pkg/captcha"
	"github.com/Lothbrok303/lazabot-ubu/pkg/crypto"
	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
)

// Environment variables holding account credentials: either the singular
// pair, or a numbered family (LAZABOT_USERNAME_1, LAZABOT_PASSWORD_1, ...).
const (
	UsernameEnv = "LAZABOT_USERNAME"
	PasswordEnv = "LAZABOT_PASSWORD"
	EmailEnv    = "LAZABOT_EMAIL"

	// CaptchaEndpointEnv optionally overrides the solver service endpoint.
	CaptchaEndpointEnv = "LAZABOT_CAPTCHA_ENDPOINT"

	maxNumberedAccounts = 32
)

// ErrNotFound is returned when no vault file exists at the given path.
var ErrNotFound = errors.New("vault not found")

// Account is one stored credential pair.
type Account struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// CaptchaCredentials hold the solver service key.
type CaptchaCredentials struct {
	APIKey   string `json:"api_key"`
	Endpoint string `json:"endpoint,omitempty"`
}

// ProxyCredentials hold one upstream proxy's coordinates.
type ProxyCredentials struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Type     string `json:"type"`
}

// MasterKey records the sealing key inside the vault so a restored vault can
// be checked against the key that opened it.
type MasterKey struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// Vault is the decrypted credential document.
type Vault struct {
	Accounts    map[string]Account          `json:"accounts"`
	Captcha     *CaptchaCredentials         `json:"captcha,omitempty"`
	Proxies     map[string]ProxyCredentials `json:"proxies"`
	MasterKey   MasterKey                   `json:"master_key"`
	CreatedAt   time.Time                   `json:"created_at"`
	LastUpdated time.Time                   `json:"last_updated"`
}

// New returns an empty vault stamped now.
func New() *Vault {
	now := time.Now().UTC()
	return &Vault{
		Accounts:    make(map[string]Account),
		Proxies:     make(map[string]ProxyCredentials),
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// Load reads and opens a sealed vault file.
func Load(path string, envelope *crypto.Envelope) (*Vault, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}

	plaintext, err := envelope.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}

	var v Vault
	if err := json.Unmarshal(plaintext, &v); err != nil {
		return nil, fmt.Errorf("failed to decode vault: %w", err)
	}
	if v.Accounts == nil {
		v.Accounts = make(map[string]Account)
	}
	if v.Proxies == nil {
		v.Proxies = make(map[string]ProxyCredentials)
	}
	return &v, nil
}

// Save seals the vault and writes it atomically.
func (v *Vault) Save(path string, envelope *crypto.Envelope) error {
	v.LastUpdated = time.Now().UTC()

	plaintext, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode vault: %w", err)
	}
	sealed, err := envelope.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("failed to seal vault: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create vault dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("failed to write vault: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace vault: %w", err)
	}
	return nil
}

// AccountIDs returns the stored account ids, sorted.
func (v *Vault) AccountIDs() []string {
	ids := make([]string, 0, len(v.Accounts))
	for id := range v.Accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadFromEnv builds a vault from environment credentials: the singular
// username/password pair, the numbered family, and the solver key if set.
func LoadFromEnv() *Vault {
	v := New()

	if key := os.Getenv(crypto.MasterKeyEnv); key != "" {
		v.MasterKey = MasterKey{Key: key, CreatedAt: time.Now().UTC()}
	}

	if user := os.Getenv(UsernameEnv); user != "" {
		v.Accounts["default"] = Account{
			Username: user,
			Password: os.Getenv(PasswordEnv),
			Email:    os.Getenv(EmailEnv),
		}
	}

	for i := 1; i <= maxNumberedAccounts; i++ {
		user := os.Getenv(fmt.Sprintf("%s_%d", UsernameEnv, i))
		if user == "" {
			break
		}
		v.Accounts[fmt.Sprintf("account-%d", i)] = Account{
			Username: user,
			Password: os.Getenv(fmt.Sprintf("%s_%d", PasswordEnv, i)),
			Email:    os.Getenv(fmt.Sprintf("%s_%d", EmailEnv, i)),
		}
	}

	if key := os.Getenv(captcha.APIKeyEnv); key != "" {
		v.Captcha = &CaptchaCredentials{
			APIKey:   key,
			Endpoint: os.Getenv(CaptchaEndpointEnv),
		}
	}

	log.WithComponent("vault").Debug().
		Int("accounts", len(v.Accounts)).
		Bool("captcha", v.Captcha != nil).
		Msg("credentials loaded from environment")
	return v
}

// Problem describes one validation finding.
type Problem struct {
	Key     string
	Message string
}

// ValidateEnv checks the process environment for everything a production
// run needs, reporting every problem rather than stopping at the first.
func ValidateEnv() []Problem {
	var problems []Problem

	if _, err := crypto.FromEnv(); err != nil {
		problems = append(problems, Problem{Key: crypto.MasterKeyEnv, Message: err.Error()})
	}

	singular := os.Getenv(UsernameEnv) != ""
	numbered := os.Getenv(UsernameEnv+"_1") != ""
	if !singular && !numbered {
		problems = append(problems, Problem{
			Key:     UsernameEnv,
			Message: fmt.Sprintf("no account credentials: set %s or %s_1", UsernameEnv, UsernameEnv),
		})
	}
	if singular && os.Getenv(PasswordEnv) == "" {
		problems = append(problems, Problem{Key: PasswordEnv, Message: "username set without a password"})
	}

	if os.Getenv(captcha.APIKeyEnv) == "" {
		problems = append(problems, Problem{
			Key:     captcha.APIKeyEnv,
			Message: "challenge solver key not set; checkouts behind a captcha will fail",
		})
	}

	return problems
}
