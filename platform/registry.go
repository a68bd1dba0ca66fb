package platform

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry is an immutable, name-indexed set of platforms.
type Registry struct {
	byName map[string]*Platform
	order  []string
}

// NewRegistry validates and indexes the given platforms. Order is preserved for All.
func NewRegistry(platforms ...Platform) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*Platform, len(platforms)),
		order:  make([]string, 0, len(platforms)),
	}
	for i := range platforms {
		p := platforms[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.byName[p.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlatform, p.Name)
		}
		r.byName[p.Name] = &p
		r.order = append(r.order, p.Name)
	}
	return r, nil
}

// Get returns the platform registered under name.
func (r *Registry) Get(name string) (*Platform, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
	}
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
	}
	return p, nil
}

// All returns the platforms in declaration order, hidden ones excluded.
func (r *Registry) All() []*Platform {
	if r == nil {
		return nil
	}
	out := make([]*Platform, 0, len(r.order))
	for _, name := range r.order {
		if p := r.byName[name]; !p.Hidden {
			out = append(out, p)
		}
	}
	return out
}

// Names returns every registered platform name, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Len returns the number of registered platforms.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// file mirrors the YAML schema of the platforms file.
type file struct {
	Platforms []Platform `yaml:"platforms"`
}

// Load decodes a platforms YAML document, applies environment overrides and builds
// a Registry.
//
// Overrides use EMF_PLATFORM_<NAME>_URL, EMF_PLATFORM_<NAME>_CLIENT_ID and
// EMF_PLATFORM_<NAME>_CLIENT_SECRET, NAME being the upper-cased platform name with
// dashes and dots replaced by underscores.
func Load(r io.Reader) (*Registry, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode platforms: %w", err)
	}
	for i := range f.Platforms {
		applyEnv(&f.Platforms[i], os.LookupEnv)
	}
	return NewRegistry(f.Platforms...)
}

// LoadFile is Load over the file at path.
func LoadFile(path string) (*Registry, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open platforms file: %w", err)
	}
	defer fh.Close()
	return Load(fh)
}

func applyEnv(p *Platform, lookup func(string) (string, bool)) {
	prefix := "EMF_PLATFORM_" + envName(p.Name) + "_"
	if v, ok := lookup(prefix + "URL"); ok && v != "" {
		p.URL = v
	}
	if v, ok := lookup(prefix + "CLIENT_ID"); ok && v != "" {
		p.OAuth.ClientID = v
	}
	if v, ok := lookup(prefix + "CLIENT_SECRET"); ok {
		p.OAuth.ClientSecret = v
	}
}

func envName(name string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(strings.ToUpper(name))
}
