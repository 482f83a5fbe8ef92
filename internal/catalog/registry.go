// =============================================================================
// CFDI Transform - Catalog Registry
// =============================================================================
//
// The registry holds the catalogs and profiles available to the application:
// the built-in ones embedded in the binary, plus any YAML files loaded from
// the configured profiles directory. A later file with the same name replaces
// an earlier one, so user files can override built-ins.
//
// FILE TYPES:
//   A YAML file with a top-level "profile" key is a profile; a file with a
//   top-level "catalog" key (and no "profile" key) is a catalog.
//
// =============================================================================

package catalog

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Registry holds loaded catalogs and profiles by name.
type Registry struct {
	catalogs map[string]*Catalog
	profiles map[string]*Profile
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		catalogs: make(map[string]*Catalog),
		profiles: make(map[string]*Profile),
	}
}

// Builtin returns a registry holding the embedded catalogs and profiles.
func Builtin() (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadFS(builtinFS, "builtin"); err != nil {
		return nil, fmt.Errorf("failed to load built-in profiles: %w", err)
	}
	return r, nil
}

// LoadDir loads every *.yaml and *.yml file in dir.
func (r *Registry) LoadDir(dir string) error {
	return r.LoadFS(os.DirFS(dir), ".")
}

// LoadFS loads every *.yaml and *.yml file in dir of fsys.
func (r *Registry) LoadFS(fsys fs.FS, dir string) error {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := fs.Glob(fsys, path.Join(dir, pattern))
		if err != nil {
			return fmt.Errorf("failed to search for profile files: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	for _, file := range files {
		if err := r.loadFile(fsys, file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func (r *Registry) loadFile(fsys fs.FS, file string) error {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return err
	}

	var header struct {
		Catalog string `yaml:"catalog"`
		Profile string `yaml:"profile"`
	}
	if err := yaml.Unmarshal(data, &header); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	switch {
	case header.Profile != "":
		var p Profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to parse profile: %w", err)
		}
		if p.Export.Template != "" {
			tpl, err := fs.ReadFile(fsys, path.Join(path.Dir(file), p.Export.Template))
			if err != nil {
				return fmt.Errorf("failed to read column template: %w", err)
			}
			def, err := ReadTemplate(bytes.NewReader(tpl))
			if err != nil {
				return err
			}
			p.Export.Groups = def.Groups
			p.Export.Columns = def.Columns
		}
		r.AddProfile(&p)
	case header.Catalog != "":
		var c Catalog
		if err := yaml.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to parse catalog: %w", err)
		}
		r.AddCatalog(&c)
	default:
		return fmt.Errorf("file declares neither 'catalog' nor 'profile'")
	}
	return nil
}

// AddCatalog registers a catalog, replacing any catalog with the same name.
func (r *Registry) AddCatalog(c *Catalog) {
	r.catalogs[c.Name] = c
}

// AddProfile registers a profile, replacing any profile with the same name.
func (r *Registry) AddProfile(p *Profile) {
	r.profiles[p.Name] = p
}

// Catalog returns the catalog called name.
func (r *Registry) Catalog(name string) (*Catalog, bool) {
	c, ok := r.catalogs[name]
	return c, ok
}

// Profile returns the profile called name.
func (r *Registry) Profile(name string) (*Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// Catalogs returns all catalogs sorted by name.
func (r *Registry) Catalogs() []*Catalog {
	out := make([]*Catalog, 0, len(r.catalogs))
	for _, c := range r.catalogs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Profiles returns all profiles sorted by name.
func (r *Registry) Profiles() []*Profile {
	out := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve returns a profile together with its catalog.
func (r *Registry) Resolve(profile string) (*Profile, *Catalog, error) {
	p, ok := r.profiles[profile]
	if !ok {
		return nil, nil, fmt.Errorf("unknown profile %q", profile)
	}
	c, ok := r.catalogs[p.Catalog]
	if !ok {
		return nil, nil, fmt.Errorf("profile %q: unknown catalog %q", profile, p.Catalog)
	}
	return p, c, nil
}
