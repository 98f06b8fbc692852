package cli

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"1234", "****"},
		{"12345678", "********"},
		{"123456789", "1234*6789"},
		{"ak-1234567890abcdef", "ak-1***********cdef"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := MaskAPIKey(tt.key); got != tt.want {
				t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestContextMasked(t *testing.T) {
	ctx := &Context{Name: "prod", AppID: "123", AccessKey: "abcdefghijkl"}
	m := ctx.Masked()
	if m.AccessKey != "abcd****ijkl" {
		t.Errorf("masked AccessKey = %q", m.AccessKey)
	}
	if ctx.AccessKey != "abcdefghijkl" {
		t.Error("Masked modified the original")
	}
	if m.AppID != "123" {
		t.Errorf("AppID = %q", m.AppID)
	}
}

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadConfigWithPath("lanqidialog", filepath.Join(t.TempDir(), "lanqidialog", "config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigWithPath: %v", err)
	}
	return cfg
}

func TestLoadConfigCreatesFile(t *testing.T) {
	cfg := newTestConfig(t)
	if cfg.AppName != "lanqidialog" {
		t.Errorf("AppName = %q", cfg.AppName)
	}
	if cfg.Contexts == nil {
		t.Error("Contexts not initialized")
	}
	info, err := os.Stat(cfg.Path())
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestConfigContexts(t *testing.T) {
	cfg := newTestConfig(t)

	if err := cfg.AddContext("prod", &Context{AppID: "100", AccessKey: "key-prod"}); err != nil {
		t.Fatal(err)
	}
	if err := cfg.AddContext("staging", &Context{AppID: "200", AccessKey: "key-stg", BaseURL: "wss://staging/dialogue"}); err != nil {
		t.Fatal(err)
	}
	if err := cfg.AddContext(" ", &Context{}); err == nil {
		t.Error("AddContext accepted a blank name")
	}

	if got := cfg.ContextNames(); !slices.Equal(got, []string{"prod", "staging"}) {
		t.Errorf("ContextNames = %v", got)
	}

	if _, err := cfg.ResolveContext(""); !errors.Is(err, ErrNoCurrentContext) {
		t.Errorf("ResolveContext with none selected: %v", err)
	}
	if err := cfg.UseContext("staging"); err != nil {
		t.Fatal(err)
	}
	ctx, err := cfg.ResolveContext("")
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Name != "staging" || ctx.BaseURL != "wss://staging/dialogue" {
		t.Errorf("current context = %+v", ctx)
	}
	ctx, err = cfg.ResolveContext("prod")
	if err != nil || ctx.AppID != "100" {
		t.Errorf("ResolveContext(prod) = %+v, %v", ctx, err)
	}

	if err := cfg.UseContext("missing"); !errors.Is(err, ErrContextNotFound) {
		t.Errorf("UseContext(missing) = %v", err)
	}
	if err := cfg.DeleteContext("missing"); !errors.Is(err, ErrContextNotFound) {
		t.Errorf("DeleteContext(missing) = %v", err)
	}

	if err := cfg.DeleteContext("staging"); err != nil {
		t.Fatal(err)
	}
	if cfg.CurrentContext != "" {
		t.Errorf("CurrentContext = %q after deleting it", cfg.CurrentContext)
	}
}

func TestConfigPersistence(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.AddContext("prod", &Context{
		AppID:      "100",
		AccessKey:  "key-prod",
		AppKey:     "app-key",
		ResourceID: "volc.speech.dialog",
		Speaker:    "zh_female_vv",
	})
	cfg.UseContext("prod")

	data, err := os.ReadFile(cfg.Path())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"current_context: prod", "app_id:", "access_key: key-prod", "resource_id: volc.speech.dialog"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config file lacks %q:\n%s", want, data)
		}
	}

	loaded, err := LoadConfigWithPath("lanqidialog", cfg.Path())
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := loaded.ResolveContext("")
	if err != nil {
		t.Fatal(err)
	}
	want := Context{
		Name:       "prod",
		AppID:      "100",
		AccessKey:  "key-prod",
		AppKey:     "app-key",
		ResourceID: "volc.speech.dialog",
		Speaker:    "zh_female_vv",
	}
	if *ctx != want {
		t.Errorf("loaded context = %+v, want %+v", *ctx, want)
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("contexts: [unclosed"), 0o600)
	if _, err := LoadConfigWithPath("lanqidialog", path); err == nil {
		t.Error("expected parse error")
	}
}
