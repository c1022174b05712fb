package repo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config stores repository-local settings such as author identity and
// named remotes. It lives at .twig/config.toml.
type Config struct {
	User    UserConfig              `toml:"user"`
	Remotes map[string]RemoteConfig `toml:"remote"`
}

// UserConfig identifies the committing user.
type UserConfig struct {
	Name       string `toml:"name,omitempty"`
	SigningKey string `toml:"signing_key,omitempty"`
}

// RemoteConfig describes a named remote.
type RemoteConfig struct {
	URL string `toml:"url"`
}

func (r *Repo) configPath() string {
	return filepath.Join(r.TwigDir, "config.toml")
}

// ReadConfig reads .twig/config.toml. Missing config returns an empty config.
func (r *Repo) ReadConfig() (*Config, error) {
	cfg := &Config{Remotes: make(map[string]RemoteConfig)}

	data, err := os.ReadFile(r.configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("read config: unmarshal: %w", err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]RemoteConfig)
	}
	return cfg, nil
}

// WriteConfig atomically writes .twig/config.toml.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]RemoteConfig)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}

	tmp, err := os.CreateTemp(r.TwigDir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// SetUser stores the author identity in repository config.
func (r *Repo) SetUser(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set user: name is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.User.Name = name
	return r.WriteConfig(cfg)
}

// SetSigningKey stores the path of the SSH key used to sign commits.
func (r *Repo) SetSigningKey(keyPath string) error {
	keyPath = strings.TrimSpace(keyPath)
	if keyPath == "" {
		return fmt.Errorf("set signing key: key path is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.User.SigningKey = keyPath
	return r.WriteConfig(cfg)
}

// SetRemote stores/updates a named remote URL in repository config.
func (r *Repo) SetRemote(name, remoteURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set remote: remote name is required")
	}
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return fmt.Errorf("set remote: remote URL is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Remotes[name] = RemoteConfig{URL: remoteURL}
	return r.WriteConfig(cfg)
}

// RemoveRemote deletes a named remote from repository config.
func (r *Repo) RemoveRemote(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("remove remote: remote name is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	if _, ok := cfg.Remotes[name]; !ok {
		return fmt.Errorf("remove remote: remote %q is not configured", name)
	}
	delete(cfg.Remotes, name)
	return r.WriteConfig(cfg)
}

// RemoteURL returns the configured URL for the given remote name.
func (r *Repo) RemoteURL(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("remote name is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return "", err
	}
	rc, ok := cfg.Remotes[name]
	if !ok || strings.TrimSpace(rc.URL) == "" {
		return "", fmt.Errorf("remote %q is not configured", name)
	}
	return rc.URL, nil
}

// ListRemotes returns remote names sorted alphabetically.
func (r *Repo) ListRemotes() ([]string, error) {
	cfg, err := r.ReadConfig()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cfg.Remotes))
	for name := range cfg.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// defaultAuthor returns the configured user name, or "unknown" when no
// identity is configured.
func (r *Repo) defaultAuthor() string {
	cfg, err := r.ReadConfig()
	if err != nil || strings.TrimSpace(cfg.User.Name) == "" {
		return "unknown"
	}
	return cfg.User.Name
}
