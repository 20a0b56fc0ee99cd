package level

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

//go:embed levels/*.yaml
var builtinLevels embed.FS

// Catalog is the level factory. It holds validated definitions loaded from
// the built-in set or from a directory.
type Catalog struct {
	mu    sync.RWMutex
	defs  map[string]*Definition
	ids   []string
	dir   string
	opts  Options
	first string
}

// NewCatalog loads the built-in levels.
func NewCatalog(opts Options) (*Catalog, error) {
	c := &Catalog{opts: opts}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCatalog loads every *.yaml/*.yml file in dir.
func LoadCatalog(dir string, opts Options) (*Catalog, error) {
	c := &Catalog{dir: dir, opts: opts}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the source directory, or "" for the built-in set.
func (c *Catalog) Dir() string { return c.dir }

// Reload re-reads and validates every definition. On error the previous
// definitions stay in place. Levels already created are unaffected.
func (c *Catalog) Reload() error {
	var (
		defs []*Definition
		err  error
	)
	if c.dir == "" {
		defs, err = readDefinitions(builtinLevels, "levels")
	} else {
		defs, err = readDefinitions(os.DirFS(c.dir), ".")
	}
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return fmt.Errorf("no level definitions found")
	}

	byID := make(map[string]*Definition, len(defs))
	for _, d := range defs {
		if _, ok := byID[d.ID]; ok {
			return fmt.Errorf("duplicate level id %s", d.ID)
		}
		byID[d.ID] = d
	}
	for _, d := range defs {
		if d.Next != "" {
			if _, ok := byID[d.Next]; !ok {
				return fmt.Errorf("level %s: next level %s does not exist", d.ID, d.Next)
			}
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	c.mu.Lock()
	c.defs = byID
	c.ids = ids
	c.first = firstLevel(byID, ids)
	c.mu.Unlock()

	c.opts.Logger.Info("level.catalog_loaded", "level catalog loaded", map[string]interface{}{
		"levels": ids,
		"dir":    c.dir,
	})
	return nil
}

// firstLevel picks the level no other level leads to, falling back to the
// lowest id.
func firstLevel(defs map[string]*Definition, ids []string) string {
	pointed := make(map[string]bool)
	for _, d := range defs {
		if d.Next != "" {
			pointed[d.Next] = true
		}
	}
	for _, id := range ids {
		if !pointed[id] {
			return id
		}
	}
	return ids[0]
}

func readDefinitions(fsys fs.FS, dir string) ([]*Definition, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read level directory: %w", err)
	}
	var defs []*Definition
	for _, e := range entries {
		if e.IsDir() || !isLevelFile(e.Name()) {
			continue
		}
		p := path.Join(dir, e.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		def, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func isLevelFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Create builds a new, uninitialized level.
func (c *Catalog) Create(levelID string, skillTier *int) (Level, error) {
	c.mu.RLock()
	def, ok := c.defs[levelID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLevel, levelID)
	}
	return NewScripted(def, skillTier, c.opts), nil
}

// NextLevelID returns the level that follows levelID, or "".
func (c *Catalog) NextLevelID(levelID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if def, ok := c.defs[levelID]; ok {
		return def.Next
	}
	return ""
}

// First returns the starting level.
func (c *Catalog) First() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.first
}

// IDs returns every level id, sorted.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.ids...)
}

// Definition returns the definition for id.
func (c *Catalog) Definition(id string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[id]
	return d, ok
}
