package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrMenuNotFound = errors.New("menu not found")
	ErrInvalidMenu  = errors.New("invalid menu")
)

var menuExtensions = []string{".yaml", ".yml", ".json"}

// Manager loads and caches menus from a directory. The directory listing and
// unknown refs are cached too, until RefreshCache.
type Manager struct {
	menuDir string
	menus   map[string]*Menu
	missing map[string]struct{}
	refs    []string
	listed  bool
	mu      sync.RWMutex
}

// NewManager creates a menu manager for menuDir.
func NewManager(menuDir string) (*Manager, error) {
	if _, err := os.Stat(menuDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("menu directory does not exist: %s", menuDir)
	}
	return &Manager{
		menuDir: menuDir,
		menus:   make(map[string]*Menu),
		missing: make(map[string]struct{}),
	}, nil
}

// LoadMenu loads a menu by restaurant ref, from cache when possible.
func (m *Manager) LoadMenu(ref string) (*Menu, error) {
	if isMenuFile(ref) {
		ref = menuRef(ref)
	}

	m.mu.RLock()
	menu, ok := m.menus[ref]
	_, miss := m.missing[ref]
	m.mu.RUnlock()
	if ok {
		return menu, nil
	}
	if miss {
		return nil, ErrMenuNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if menu, ok := m.menus[ref]; ok {
		return menu, nil
	}
	if _, miss := m.missing[ref]; miss {
		return nil, ErrMenuNotFound
	}
	if ref == "" || strings.ContainsAny(ref, `/\`) || strings.Contains(ref, "..") {
		return nil, ErrMenuNotFound
	}

	for _, ext := range menuExtensions {
		path := filepath.Join(m.menuDir, ref+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		menu, err := ReadMenu(path)
		if err != nil {
			return nil, err
		}
		if problems := ValidateMenu(menu); len(problems) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidMenu, strings.Join(problems, "; "))
		}
		m.menus[ref] = menu
		return menu, nil
	}
	m.missing[ref] = struct{}{}
	return nil, ErrMenuNotFound
}

// menuRefs returns the refs of the menu files in the directory, listing it
// once per cache generation.
func (m *Manager) menuRefs() ([]string, error) {
	m.mu.RLock()
	if m.listed {
		refs := m.refs
		m.mu.RUnlock()
		return refs, nil
	}
	m.mu.RUnlock()

	files, err := MenuFiles(m.menuDir)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(files))
	for _, file := range files {
		refs = append(refs, menuRef(file))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.listed {
		m.refs, m.listed = refs, true
	}
	return m.refs, nil
}

// ListMenus returns every loadable menu in the directory. Invalid files are skipped.
func (m *Manager) ListMenus() ([]*MenuInfo, error) {
	refs, err := m.menuRefs()
	if err != nil {
		return nil, err
	}

	var out []*MenuInfo
	for _, ref := range refs {
		menu, err := m.LoadMenu(ref)
		if err != nil {
			continue
		}
		out = append(out, &MenuInfo{
			Filename:    menu.filename,
			ID:          ref,
			Name:        menu.Name,
			Description: menu.Description,
			ItemCount:   len(menu.Items),
		})
	}
	return out, nil
}

// Lookup resolves a product (and optional variant) for decoration. With an
// empty restaurantRef every menu is searched in name order.
func (m *Manager) Lookup(ctx context.Context, restaurantRef, productRef, variantRef string) (ProductInfo, bool) {
	if restaurantRef != "" {
		menu, err := m.LoadMenu(restaurantRef)
		if err != nil {
			return ProductInfo{}, false
		}
		if it := menu.item(productRef); it != nil {
			return it.info(variantRef), true
		}
		return ProductInfo{}, false
	}

	refs, err := m.menuRefs()
	if err != nil {
		return ProductInfo{}, false
	}
	for _, ref := range refs {
		menu, err := m.LoadMenu(ref)
		if err != nil {
			continue
		}
		if it := menu.item(productRef); it != nil {
			return it.info(variantRef), true
		}
	}
	return ProductInfo{}, false
}

// RefreshCache drops cached menus, misses and the directory listing so the
// next lookup rereads them from disk.
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.menus = make(map[string]*Menu)
	m.missing = make(map[string]struct{})
	m.refs, m.listed = nil, false
}

// ReadMenu parses a JSON or YAML menu file, chosen by extension.
func ReadMenu(path string) (*Menu, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu file: %w", err)
	}

	var menu Menu
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &menu)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &menu)
	default:
		return nil, fmt.Errorf("%w: unsupported menu file extension %q", ErrInvalidMenu, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidMenu, filepath.Base(path), err)
	}
	if menu.ID == "" {
		menu.ID = menuRef(path)
	}
	menu.filename = filepath.Base(path)
	return &menu, nil
}

// MenuFiles lists menu files in dir, sorted by name.
func MenuFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isMenuFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func isMenuFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range menuExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func menuRef(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
