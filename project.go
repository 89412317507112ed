package chtl

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfig is the optional chtl.yaml file next to a project's sources.
// CLI flags override any value set here.
type ProjectConfig struct {
	// Output is the default output path ("-" for stdout).
	Output string `yaml:"output"`

	// Minify disables pretty-printing.
	Minify bool `yaml:"minify"`

	// Fragment forces SPA output.
	Fragment bool `yaml:"fragment"`

	// ModuleDir overrides the official module directory.
	ModuleDir string `yaml:"moduleDir"`

	// DeadlineSeconds bounds one compilation unit.
	DeadlineSeconds int `yaml:"deadlineSeconds"`

	// Serve holds dev-server settings.
	Serve struct {
		Addr string `yaml:"addr"`
	} `yaml:"serve"`
}

// projectConfigName is the file LoadProjectConfig looks for, walking from the
// source directory upward.
const projectConfigName = "chtl.yaml"

// LoadProjectConfig finds and parses chtl.yaml for the given source path. A
// missing file returns a zero config and no error.
func LoadProjectConfig(sourcePath string) (*ProjectConfig, error) {
	dir, err := filepath.Abs(filepath.Dir(sourcePath))
	if err != nil {
		return nil, err
	}
	for {
		p := filepath.Join(dir, projectConfigName)
		data, err := os.ReadFile(p)
		if err == nil {
			cfg := &ProjectConfig{}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.New(p + ": " + err.Error())
			}
			return cfg, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return &ProjectConfig{}, nil
		}
		dir = parent
	}
}

// Apply folds the config into compiler options. Minify and Fragment in the
// file always apply; ModuleDir and DeadlineSeconds only fill options that are
// still unset.
func (pc *ProjectConfig) Apply(opts *Options) {
	if pc.Minify {
		opts.Pretty = false
	}
	if pc.Fragment {
		opts.Fragment = true
	}
	if pc.ModuleDir != "" && opts.OfficialModuleDir == "" {
		opts.OfficialModuleDir = pc.ModuleDir
	}
	if pc.DeadlineSeconds > 0 && opts.Deadline == 0 {
		opts.Deadline = time.Duration(pc.DeadlineSeconds) * time.Second
	}
}
