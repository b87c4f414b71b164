package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/filterkit/internal/collection"
	"github.com/fluxbase-eu/filterkit/internal/database"
	"github.com/fluxbase-eu/filterkit/internal/filtertool"
	"github.com/fluxbase-eu/filterkit/internal/schema"
)

// Catalog supplies the definitions the API serves and the source they are
// evaluated against.
type Catalog interface {
	Definitions(ctx context.Context) (*filtertool.Set, error)
	Source() collection.Source
}

// StaticCatalog serves a fixed set of definitions
type StaticCatalog struct {
	Set   *filtertool.Set
	Store collection.Source
}

func (s *StaticCatalog) Definitions(context.Context) (*filtertool.Set, error) {
	return s.Set, nil
}

func (s *StaticCatalog) Source() collection.Source { return s.Store }

// SchemaCatalog builds definitions over the models of an inspected
// database schema and rebuilds them whenever the schema cache refreshes.
type SchemaCatalog struct {
	cache  *database.SchemaCache
	source collection.Source
	load   func(*schema.Registry) (*filtertool.Set, error)

	mu      sync.Mutex
	version uint64
	set     *filtertool.Set
}

// NewSchemaCatalog loads definitions from definitionsFile, or derives one
// per model when the file does not exist.
func NewSchemaCatalog(cache *database.SchemaCache, source collection.Source, definitionsFile string) *SchemaCatalog {
	return &SchemaCatalog{
		cache:  cache,
		source: source,
		load: func(registry *schema.Registry) (*filtertool.Set, error) {
			return LoadDefinitions(definitionsFile, registry)
		},
	}
}

// NewStaticCatalog loads definitions once over a fixed registry.
func NewStaticCatalog(registry *schema.Registry, source collection.Source, definitionsFile string) (*StaticCatalog, error) {
	set, err := LoadDefinitions(definitionsFile, registry)
	if err != nil {
		return nil, err
	}
	return &StaticCatalog{Set: set, Store: source}, nil
}

// LoadDefinitions reads definitionsFile, or derives one definition per
// model when the file does not exist.
func LoadDefinitions(definitionsFile string, registry *schema.Registry) (*filtertool.Set, error) {
	set, err := filtertool.LoadDefinitionsFile(definitionsFile, registry)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("file", definitionsFile).Msg("No definitions file, deriving a definition per model")
		return filtertool.DefaultDefinitions(registry)
	}
	return set, err
}

// Definitions returns the definitions for the current schema version.
func (s *SchemaCatalog) Definitions(ctx context.Context) (*filtertool.Set, error) {
	registry, version, err := s.cache.Registry(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set != nil && s.version == version {
		return s.set, nil
	}

	set, err := s.load(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to build definitions for schema version %d: %w", version, err)
	}
	log.Info().Uint64("version", version).Int("definitions", set.Len()).Msg("Filter definitions rebuilt")
	s.set, s.version = set, version
	return set, nil
}

func (s *SchemaCatalog) Source() collection.Source { return s.source }

// Invalidate drops the cached schema on this instance only.
func (s *SchemaCatalog) Invalidate() {
	s.cache.Invalidate()
}

// Refresh drops the cached schema on every instance and rebuilds the
// definitions here.
func (s *SchemaCatalog) Refresh(ctx context.Context) error {
	s.cache.InvalidateAll(ctx)
	_, err := s.Definitions(ctx)
	return err
}
