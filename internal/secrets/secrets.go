// Package secrets loads credentials from a per-user secrets file so that
// passwords and access keys stay out of run configuration files.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSecretsDir is the default directory for secrets
	DefaultSecretsDir = ".secrets"
	// DefaultSecretsFile is the default filename for secrets
	DefaultSecretsFile = "retail-etl.yaml"
	// SecretsFileEnvVar allows overriding the secrets file location
	SecretsFileEnvVar = "RETAIL_ETL_SECRETS_FILE"
	// SecureFileMode is the permission mode for the secrets file
	SecureFileMode = 0600

	// RefPrefix marks a config value as a reference to a named credential.
	RefPrefix = "secret:"
)

// Config represents the complete secrets file.
type Config struct {
	Credentials map[string]Credential `yaml:"credentials"`
}

// Credential is one named set of secrets. Which fields apply depends on
// where it is referenced: source connections use User and Password, object
// storage uses AccessKey and SecretKey.
type Credential struct {
	User      string `yaml:"user,omitempty"`
	Password  string `yaml:"password,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configErr    error
)

// Load loads the secrets file from the default or override location.
// It caches the result and returns the same config on subsequent calls.
func Load() (*Config, error) {
	configOnce.Do(func() {
		globalConfig, configErr = loadFromFile()
	})
	return globalConfig, configErr
}

// Reset clears the cached config (useful for testing)
func Reset() {
	configOnce = sync.Once{}
	globalConfig = nil
	configErr = nil
}

// GetSecretsPath returns the path to the secrets file
func GetSecretsPath() string {
	if envPath := os.Getenv(SecretsFileEnvVar); envPath != "" {
		return envPath
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", DefaultSecretsDir, DefaultSecretsFile)
	}
	return filepath.Join(homeDir, DefaultSecretsDir, DefaultSecretsFile)
}

func loadFromFile() (*Config, error) {
	path := GetSecretsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &SecretsNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}

	// Reject files other users can read.
	info, err := os.Stat(path)
	if err == nil {
		mode := info.Mode().Perm()
		if mode&0077 != 0 {
			return nil, fmt.Errorf("secrets file %s has insecure permissions (%04o). "+
				"Other users can read your credentials. Run: chmod 600 %s", path, mode, path)
		}
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks that every credential has a name and at least one value.
func (c *Config) Validate() error {
	for name, cred := range c.Credentials {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("secrets: credential with empty name")
		}
		if cred == (Credential{}) {
			return fmt.Errorf("secrets: credential %q is empty", name)
		}
	}
	return nil
}

// Credential returns the named credential.
func (c *Config) Credential(name string) (*Credential, error) {
	cred, ok := c.Credentials[name]
	if !ok {
		return nil, fmt.Errorf("secrets: credential %q not found (available: %s)", name, strings.Join(c.names(), ", "))
	}
	return &cred, nil
}

func (c *Config) names() []string {
	names := make([]string, 0, len(c.Credentials))
	for n := range c.Credentials {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsRef reports whether v is a "secret:NAME" reference.
func IsRef(v string) bool {
	return strings.HasPrefix(v, RefPrefix) && len(v) > len(RefPrefix)
}

// Resolve returns v unchanged unless it is a reference, in which case the
// named credential is loaded and field selects the value to use.
func Resolve(v string, field func(*Credential) string) (string, error) {
	if !IsRef(v) {
		return v, nil
	}
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	cred, err := cfg.Credential(strings.TrimPrefix(v, RefPrefix))
	if err != nil {
		return "", err
	}
	out := field(cred)
	if out == "" {
		return "", fmt.Errorf("secrets: credential %q has no value for this field", strings.TrimPrefix(v, RefPrefix))
	}
	return out, nil
}

// SecretsNotFoundError is returned when the secrets file doesn't exist
type SecretsNotFoundError struct {
	Path string
}

func (e *SecretsNotFoundError) Error() string {
	return fmt.Sprintf(`secrets file not found: %s

Create it with permissions 600, for example:

credentials:
  warehouse-db:
    user: etl
    password: "your-password"
  exports-bucket:
    access_key: "your-access-key"
    secret_key: "your-secret-key"

and reference entries from the config as "secret:warehouse-db".
`, e.Path)
}
