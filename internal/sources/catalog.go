package sources

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"webstar/noturno-leadfinder-worker/internal/dto"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// LanguageCatalog lists the default keywords and communities of one language
type LanguageCatalog struct {
	Keywords    []string            `yaml:"keywords"`
	Communities map[string][]string `yaml:"communities"`
}

// Catalog maps ISO language codes to their defaults. It is read-only after load.
type Catalog struct {
	Languages map[string]LanguageCatalog `yaml:"languages"`
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
	defaultCatalogErr  error
)

// DefaultCatalog returns the embedded catalog, decoded once per process
func DefaultCatalog() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = ParseCatalog(catalogYAML)
	})
	return defaultCatalog, defaultCatalogErr
}

// ParseCatalog decodes a catalog document
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if c.Languages == nil {
		c.Languages = map[string]LanguageCatalog{}
	}
	return &c, nil
}

// Keywords returns a copy of the default keywords of lang
func (c *Catalog) Keywords(lang string) []string {
	return append([]string(nil), c.Languages[lang].Keywords...)
}

// Communities returns a copy of the default communities of lang on platform
func (c *Catalog) Communities(lang string, platform dto.Platform) []string {
	return append([]string(nil), c.Languages[lang].Communities[string(platform)]...)
}

// LanguageCodes returns the known language codes in sorted order
func (c *Catalog) LanguageCodes() []string {
	codes := make([]string, 0, len(c.Languages))
	for code := range c.Languages {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
