package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

var (
	ErrNotFound        = errors.New("bundle not found")
	ErrInvalidManifest = errors.New("invalid bundle manifest")
)

// ManifestPattern matches manifest files below the bundles directory
const ManifestPattern = "**/*.{yaml,yml,toml}"

// Registry holds the installed bundles by name
type Registry struct {
	mu      sync.RWMutex
	bundles map[string]*types.Bundle
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{bundles: make(map[string]*types.Bundle)}
}

// LoadDir loads every manifest under dir
func (r *Registry) LoadDir(dir string) (int, error) {
	return r.Load(os.DirFS(dir))
}

// Load loads every manifest in fsys. Valid manifests are registered even
// when others fail; the returned error lists every failure.
func (r *Registry) Load(fsys fs.FS) (int, error) {
	matches, err := doublestar.Glob(fsys, ManifestPattern)
	if err != nil {
		return 0, fmt.Errorf("failed to scan manifests: %w", err)
	}
	sort.Strings(matches)

	var (
		result *multierror.Error
		loaded int
	)
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}

		b, err := Parse(name, data)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}
		b.Source = name

		if err := r.Register(b); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}
		loaded++
	}

	return loaded, result.ErrorOrNil()
}

// Register validates and adds a bundle. A bundle with the same name
// replaces the previous one.
func (r *Registry) Register(b *types.Bundle) error {
	if err := Validate(b); err != nil {
		return err
	}

	r.mu.Lock()
	r.bundles[b.Name] = b
	r.mu.Unlock()
	return nil
}

// Get returns a bundle by name
func (r *Registry) Get(name string) (*types.Bundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bundles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return b, nil
}

// List returns all bundles sorted by name
func (r *Registry) List() []*types.Bundle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.Bundle, 0, len(r.bundles))
	for _, b := range r.bundles {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered bundles
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bundles)
}

// Parse decodes a manifest, choosing the format from the file extension
func Parse(name string, data []byte) (*types.Bundle, error) {
	var b types.Bundle

	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidManifest, path.Ext(name))
	}

	return &b, nil
}

// Validate checks the required manifest fields
func Validate(b *types.Bundle) error {
	var result *multierror.Error

	if b.Name == "" {
		result = multierror.Append(result, errors.New("name is required"))
	}
	if b.APIVersion == 0 {
		result = multierror.Append(result, errors.New("api_version is required"))
	}
	if _, ok := types.ParseSupportState(b.SupportCache); !ok {
		result = multierror.Append(result, fmt.Errorf("support_process_cache %q is not one of support, not_support", b.SupportCache))
	}
	if len(b.Modules) == 0 {
		result = multierror.Append(result, errors.New("at least one module is required"))
	}
	seen := make(map[string]bool, len(b.Modules))
	for _, m := range b.Modules {
		if m.Name == "" {
			result = multierror.Append(result, errors.New("module name is required"))
			continue
		}
		if seen[m.Name] {
			result = multierror.Append(result, fmt.Errorf("module %q declared twice", m.Name))
		}
		seen[m.Name] = true
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return nil
}
