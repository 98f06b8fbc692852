package cli

import (
	"os"
	"path/filepath"
)

// Paths locates an app's files under ~/.lanqi/<app>.
type Paths struct {
	AppName string
	HomeDir string
}

// NewPaths returns the paths of appName in the current user's home.
func NewPaths(appName string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{AppName: appName, HomeDir: home}, nil
}

func (p *Paths) BaseDir() string { return filepath.Join(p.HomeDir, DefaultBaseDir) }

func (p *Paths) AppDir() string { return filepath.Join(p.BaseDir(), p.AppName) }

func (p *Paths) ConfigFile() string { return filepath.Join(p.AppDir(), DefaultConfigFile) }

// RecordingsDir holds received audio and frame traces when no explicit
// output path is given.
func (p *Paths) RecordingsDir() string { return filepath.Join(p.AppDir(), "recordings") }

// RecordingPath returns name inside RecordingsDir, creating the directory.
func (p *Paths) RecordingPath(name string) (string, error) {
	dir := p.RecordingsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
