package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFileName is the project descriptor inside the repo's .sift directory.
const ProjectFileName = "project.yaml"

// DefaultDatabase is the store path used when the project file names none,
// relative to the project root.
const DefaultDatabase = ".sift/sift.db"

// ErrNoProject is returned when no project file is found.
var ErrNoProject = errors.New("no .sift/project.yaml found")

// Project identifies one workspace under analysis.
type Project struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name,omitempty"`
	Database string `yaml:"database,omitempty"`

	// Root is the directory containing .sift/. Not stored.
	Root string `yaml:"-"`
}

// DatabasePath returns the absolute store path.
func (p *Project) DatabasePath() string {
	db := p.Database
	if db == "" {
		db = DefaultDatabase
	}
	if filepath.IsAbs(db) {
		return filepath.Clean(db)
	}
	return filepath.Join(p.Root, filepath.FromSlash(db))
}

// FindProject walks upward from startDir to the nearest .sift/project.yaml and loads it.
func FindProject(startDir string) (*Project, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	path := findUpward(abs, ProjectFileName)
	if path == "" {
		return nil, ErrNoProject
	}
	return LoadProject(filepath.Dir(filepath.Dir(path)))
}

// LoadProject reads root/.sift/project.yaml.
func LoadProject(root string) (*Project, error) {
	path := filepath.Join(root, DirName, ProjectFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoProject
		}
		return nil, fmt.Errorf("read project file: %w", err)
	}

	p := &Project{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse project file: %w", err)
	}
	if p.ID <= 0 {
		return nil, fmt.Errorf("project file %s: id must be a positive integer", path)
	}
	p.Root = root
	return p, nil
}

// WriteProject writes root/.sift/project.yaml, creating the directory.
func WriteProject(root string, p *Project) error {
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ProjectFileName), data, 0600); err != nil {
		return fmt.Errorf("write project file: %w", err)
	}
	p.Root = root
	return nil
}
