package translator

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Ecosystem identifies the source format a piece of metadata evidence came
// from. The set is closed; adding a format means adding a case to the
// translator dispatch, not registering a class at runtime.
type Ecosystem string

const (
	EcosystemNpm      Ecosystem = "npm"
	EcosystemPython   Ecosystem = "python"
	EcosystemMaven    Ecosystem = "maven"
	EcosystemRubyGem  Ecosystem = "rubygem"
	EcosystemCargo    Ecosystem = "cargo"
	EcosystemComposer Ecosystem = "composer"
	EcosystemCodemeta Ecosystem = "codemeta"
)

// Registry maps metadata filenames to the ecosystem that knows how to
// translate them. It is immutable after construction and injected into the
// directory extractor rather than referenced as a package global.
type Registry struct {
	exact    map[string]Ecosystem
	suffixes map[string]Ecosystem
}

// DefaultRegistry returns the built-in filename registry.
func DefaultRegistry() *Registry {
	return &Registry{
		exact: map[string]Ecosystem{
			"package.json":  EcosystemNpm,
			"PKG-INFO":      EcosystemPython,
			"pom.xml":       EcosystemMaven,
			"Cargo.toml":    EcosystemCargo,
			"composer.json": EcosystemComposer,
			"codemeta.json": EcosystemCodemeta,
		},
		suffixes: map[string]Ecosystem{
			".gemspec": EcosystemRubyGem,
		},
	}
}

// registryFile is the YAML shape of a registry override.
type registryFile struct {
	Filenames map[string]string `yaml:"filenames"`
	Suffixes  map[string]string `yaml:"suffixes"`
}

// LoadRegistry reads a registry override from a YAML file. Entries replace
// the built-in table wholesale so deployments can pin exactly what gets
// translated.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse registry file: %w", err)
	}

	r := &Registry{
		exact:    make(map[string]Ecosystem, len(rf.Filenames)),
		suffixes: make(map[string]Ecosystem, len(rf.Suffixes)),
	}
	for name, eco := range rf.Filenames {
		r.exact[name] = Ecosystem(eco)
	}
	for suffix, eco := range rf.Suffixes {
		r.suffixes[suffix] = Ecosystem(eco)
	}
	return r, nil
}

// Match returns the ecosystem for a filename, if any.
func (r *Registry) Match(filename string) (Ecosystem, bool) {
	if eco, ok := r.exact[filename]; ok {
		return eco, true
	}
	for suffix, eco := range r.suffixes {
		if strings.HasSuffix(filename, suffix) {
			return eco, true
		}
	}
	return "", false
}
