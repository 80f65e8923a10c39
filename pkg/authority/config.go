package authority

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultListenAddr is used when the config names no listen address.
const DefaultListenAddr = ":8080"

// Config describes a VA deployment.
//
//	issuer: ballista.jobs
//	listen: ":8443"
//	verify_base_url: https://ballista.jobs/v
//	store_path: /var/lib/hap/claims.json
//	keys:
//	  - file: keys/key_002.jwk
//	    active: true
//	  - file: keys/key_001.jwk
type Config struct {
	// Issuer is the VA domain written into every claim.
	Issuer string `yaml:"issuer"`

	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// VerifyBaseURL is the human-facing verification page. Claim ids are
	// appended as a path segment; compact records as ?c=.
	VerifyBaseURL string `yaml:"verify_base_url"`

	// APIKey guards the issuance API. HAP_API_KEY overrides it.
	APIKey string `yaml:"api_key"`

	// StorePath is the claim store file. Empty keeps claims in memory.
	StorePath string `yaml:"store_path"`

	// Keys are private JWK files. All are published; the active one signs.
	Keys []KeyConfig `yaml:"keys"`

	// TLS enables HTTPS when both files are set.
	TLS TLSConfig `yaml:"tls"`
}

// KeyConfig names one signing key file.
type KeyConfig struct {
	File   string `yaml:"file"`
	Active bool   `yaml:"active"`
}

// TLSConfig holds certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether both certificate files are configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// LoadConfig reads a YAML config file. Relative key and store paths are
// resolved against the directory holding the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	base := filepath.Dir(path)
	for i := range cfg.Keys {
		cfg.Keys[i].File = resolve(base, cfg.Keys[i].File)
	}
	cfg.StorePath = resolve(base, cfg.StorePath)
	cfg.TLS.CertFile = resolve(base, cfg.TLS.CertFile)
	cfg.TLS.KeyFile = resolve(base, cfg.TLS.KeyFile)

	if key := os.Getenv("HAP_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListenAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the config can start a VA.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("config: issuer is required")
	}
	if len(c.Keys) == 0 {
		return errors.New("config: at least one key is required")
	}

	active := 0
	for _, k := range c.Keys {
		if k.File == "" {
			return errors.New("config: key entry without file")
		}
		if k.Active {
			active++
		}
	}
	if active > 1 {
		return errors.New("config: more than one active key")
	}
	return nil
}

// LoadKeys reads every configured key file. The active key (or the first
// one, if none is marked) becomes the signer; all are published.
func (c *Config) LoadKeys() (*SigningKey, []SigningKey, error) {
	keys := make([]SigningKey, 0, len(c.Keys))
	activeIdx := 0
	for i, kc := range c.Keys {
		key, err := LoadSigningKey(kc.File)
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, *key)
		if kc.Active {
			activeIdx = i
		}
	}
	return &keys[activeIdx], keys, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
