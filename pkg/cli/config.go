package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the directory under $HOME holding per-app state.
	DefaultBaseDir = ".lanqi"
	// DefaultConfigFile is the context file name inside an app directory.
	DefaultConfigFile = "config.yaml"
)

var (
	ErrContextNotFound  = errors.New("cli: context not found")
	ErrNoCurrentContext = errors.New("cli: no current context set")
)

// Config is the on-disk context list of one app, in the manner of a
// kubeconfig.
type Config struct {
	AppName string `yaml:"-"`

	CurrentContext string              `yaml:"current_context,omitempty"`
	Contexts       map[string]*Context `yaml:"contexts,omitempty"`

	path string
}

// Context holds the credentials and endpoint of one dialog account.
type Context struct {
	Name string `yaml:"name"`

	AppID      string `yaml:"app_id" json:"app_id"`
	AccessKey  string `yaml:"access_key" json:"access_key"`
	AppKey     string `yaml:"app_key,omitempty" json:"app_key,omitempty"`
	ResourceID string `yaml:"resource_id,omitempty" json:"resource_id,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Speaker is the default voice.
	Speaker string `yaml:"speaker,omitempty" json:"speaker,omitempty"`
}

// Masked returns a copy of ctx safe to print.
func (ctx *Context) Masked() *Context {
	c := *ctx
	c.AccessKey = MaskAPIKey(c.AccessKey)
	return &c
}

// LoadConfig loads ~/.lanqi/<app>/config.yaml, creating it if missing.
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigWithPath is LoadConfig reading from path instead, when path is
// not empty.
func LoadConfigWithPath(appName, path string) (*Config, error) {
	if path == "" {
		p, err := NewPaths(appName)
		if err != nil {
			return nil, fmt.Errorf("cli: %w", err)
		}
		path = p.ConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cli: create config dir: %w", err)
	}

	cfg := &Config{
		AppName:  appName,
		Contexts: map[string]*Context{},
		path:     path,
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Save()
	}
	if err != nil {
		return nil, fmt.Errorf("cli: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cli: parse %s: %w", path, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = map[string]*Context{}
	}
	for name, ctx := range cfg.Contexts {
		ctx.Name = name
	}
	cfg.AppName = appName
	cfg.path = path
	return cfg, nil
}

// Save writes the config. The file is private to the user since it holds
// access keys.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("cli: encode config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("cli: write config: %w", err)
	}
	return nil
}

func (c *Config) Path() string { return c.path }

// AddContext adds or replaces the context called name and saves.
func (c *Config) AddContext(name string, ctx *Context) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("cli: context name is empty")
	}
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context and saves. Deleting the current context
// leaves no context selected.
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("%w: %q", ErrContextNotFound, name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext selects a context and saves.
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("%w: %q", ErrContextNotFound, name)
	}
	c.CurrentContext = name
	return c.Save()
}

// Context returns the context called name.
func (c *Config) Context(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrContextNotFound, name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, or the current one when name
// is empty.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name != "" {
		return c.Context(name)
	}
	if c.CurrentContext == "" {
		return nil, ErrNoCurrentContext
	}
	return c.Context(c.CurrentContext)
}

// ContextNames returns the context names, sorted.
func (c *Config) ContextNames() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// MaskAPIKey hides all but the first and last four characters of key.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
