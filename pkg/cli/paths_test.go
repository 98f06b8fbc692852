package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPaths(t *testing.T) {
	home := t.TempDir()
	p := &Paths{AppName: "lanqidialog", HomeDir: home}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"BaseDir", p.BaseDir(), filepath.Join(home, ".lanqi")},
		{"AppDir", p.AppDir(), filepath.Join(home, ".lanqi", "lanqidialog")},
		{"ConfigFile", p.ConfigFile(), filepath.Join(home, ".lanqi", "lanqidialog", "config.yaml")},
		{"RecordingsDir", p.RecordingsDir(), filepath.Join(home, ".lanqi", "lanqidialog", "recordings")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestPathsRecordingPath(t *testing.T) {
	p := &Paths{AppName: "lanqidialog", HomeDir: t.TempDir()}
	path, err := p.RecordingPath("reply.pcm")
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(p.RecordingsDir(), "reply.pcm") {
		t.Errorf("RecordingPath = %q", path)
	}
	if info, err := os.Stat(p.RecordingsDir()); err != nil || !info.IsDir() {
		t.Errorf("recordings dir not created: %v", err)
	}
}

func TestNewPaths(t *testing.T) {
	p, err := NewPaths("lanqidialog")
	if err != nil {
		t.Fatal(err)
	}
	if p.HomeDir == "" || p.AppName != "lanqidialog" {
		t.Errorf("NewPaths = %+v", p)
	}
}
