package theme

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
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/logging"
)

// Pattern matches theme files inside the themes directory.
const Pattern = "*.{json,yaml,yml}"

// Theme is an xterm.js theme object, passed to the client untouched.
type Theme map[string]interface{}

// Provider loads terminal themes from a directory.
type Provider struct {
	fsys   fs.FS
	logger *logging.Logger

	mu     sync.RWMutex
	themes map[string]Theme
}

// NewProvider creates a provider reading from dir. A missing directory
// yields no themes.
func NewProvider(dir string, logger *logging.Logger) *Provider {
	var fsys fs.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	}
	return NewProviderFS(fsys, logger)
}

// NewProviderFS creates a provider over an arbitrary file system.
func NewProviderFS(fsys fs.FS, logger *logging.Logger) *Provider {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Provider{
		fsys:   fsys,
		logger: logger.Named("theme"),
		themes: make(map[string]Theme),
	}
}

// Load rescans the directory. Files that cannot be read or parsed, and
// empty themes, are skipped with a warning.
func (p *Provider) Load() error {
	themes := make(map[string]Theme)
	if p.fsys == nil {
		p.swap(themes)
		return nil
	}

	matches, err := doublestar.Glob(p.fsys, Pattern)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.swap(themes)
			return nil
		}
		return fmt.Errorf("failed to list themes: %w", err)
	}
	sort.Strings(matches)

	for _, file := range matches {
		name := strings.TrimSuffix(file, path.Ext(file))
		if _, dup := themes[name]; dup {
			p.logger.Warn("Duplicate theme ignored", zap.String("file", file))
			continue
		}

		theme, err := p.read(file)
		if err != nil {
			p.logger.Warn("Skipped malformed theme", zap.String("file", file), zap.Error(err))
			continue
		}
		if len(theme) == 0 {
			p.logger.Debug("Skipped empty theme", zap.String("file", file))
			continue
		}
		themes[name] = theme
	}

	p.swap(themes)
	p.logger.Info("Themes loaded", zap.Int("count", len(themes)))
	return nil
}

func (p *Provider) read(file string) (Theme, error) {
	data, err := fs.ReadFile(p.fsys, file)
	if err != nil {
		return nil, err
	}

	var theme Theme
	switch path.Ext(file) {
	case ".json":
		err = sonic.Unmarshal(data, &theme)
	default:
		err = yaml.Unmarshal(data, &theme)
	}
	if err != nil {
		return nil, err
	}
	return theme, nil
}

func (p *Provider) swap(themes map[string]Theme) {
	p.mu.Lock()
	p.themes = themes
	p.mu.Unlock()
}

// All returns every loaded theme keyed by name.
func (p *Provider) All() map[string]Theme {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Theme, len(p.themes))
	for k, v := range p.themes {
		out[k] = v
	}
	return out
}

// Get returns one theme.
func (p *Provider) Get(name string) (Theme, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.themes[name]
	return t, ok
}

// Names lists theme names in order.
func (p *Provider) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.themes))
	for name := range p.themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
