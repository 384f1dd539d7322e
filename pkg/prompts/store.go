package prompts

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// ErrNotFound is returned when no store holds a template
var ErrNotFound = errors.New("template not found")

// TemplateStore is an interface for retrieving templates
type TemplateStore interface {
	// Get retrieves a template by ID
	Get(ctx context.Context, id string) (*Template, error)

	// List returns the IDs of all templates in the store
	List(ctx context.Context) ([]string, error)
}

// FSStore reads "<id>.tmpl" files from a file system
type FSStore struct {
	fsys fs.FS
	dir  string

	mu    sync.RWMutex
	cache map[string]*Template
}

// NewFSStore creates a store over dir inside fsys
func NewFSStore(fsys fs.FS, dir string) *FSStore {
	return &FSStore{
		fsys:  fsys,
		dir:   dir,
		cache: make(map[string]*Template),
	}
}

// NewEmbeddedStore returns the templates compiled into the binary
func NewEmbeddedStore() *FSStore {
	return NewFSStore(embedded, "templates")
}

// NewFileStore reads templates from a directory on disk
func NewFileStore(basePath string) (*FSStore, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open template directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", basePath)
	}
	return NewFSStore(os.DirFS(basePath), "."), nil
}

// Get retrieves a template by ID
func (s *FSStore) Get(ctx context.Context, id string) (*Template, error) {
	s.mu.RLock()
	tmpl, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	name := path.Join(s.dir, id+".tmpl")
	// fs.ValidPath rejects "..", which keeps lookups inside the store
	if !fs.ValidPath(name) || strings.Contains(id, "/") {
		return nil, fmt.Errorf("invalid template id %q", id)
	}

	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	tmpl, err = parseTemplateFile(string(data), id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template file %s: %w", id, err)
	}

	s.mu.Lock()
	s.cache[id] = tmpl
	s.mu.Unlock()

	return tmpl, nil
}

// List returns the IDs of all templates in the store
func (s *FSStore) List(ctx context.Context) ([]string, error) {
	matches, err := fs.Glob(s.fsys, path.Join(s.dir, "*.tmpl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list template files: %w", err)
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, strings.TrimSuffix(path.Base(match), ".tmpl"))
	}
	sort.Strings(ids)

	return ids, nil
}

// Manager resolves templates across stores, first match wins
type Manager struct {
	stores []TemplateStore
}

// NewManager creates a new template manager
func NewManager(stores ...TemplateStore) *Manager {
	return &Manager{stores: stores}
}

// Default returns a manager over the embedded templates, overridden by dir when it is set
func Default(dir string) (*Manager, error) {
	if dir == "" {
		return NewManager(NewEmbeddedStore()), nil
	}
	override, err := NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	return NewManager(override, NewEmbeddedStore()), nil
}

// Get retrieves a template by ID
func (m *Manager) Get(ctx context.Context, id string) (*Template, error) {
	for _, store := range m.stores {
		tmpl, err := store.Get(ctx, id)
		if err == nil {
			return tmpl, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns the distinct template IDs across stores
func (m *Manager) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, store := range m.stores {
		storeIDs, err := store.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range storeIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Render renders a template with the given data
func (m *Manager) Render(ctx context.Context, id string, data interface{}) (string, error) {
	tmpl, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}

	return tmpl.Render(data)
}
