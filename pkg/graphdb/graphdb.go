// Package graphdb reads the BioMedGraphica-Conn reference database from
// disk: per-type entity tables, the global relation table, and precomputed
// entity-name embeddings.
//
// The database is a directory tree:
//
//	<root>/Entity/<Type>/BioMedGraphica_Conn_<Type>.csv
//	<root>/Relation/BioMedGraphica_Conn_Relation.csv
//	<root>/Embed/<Type>/<Type>_embeddings.npy
//	<root>/Embed/<Type>/<Type>_embedding_index.csv
//
// Loaded tables are cached per entity type. Concurrent loads of the same
// table are collapsed through a singleflight group, since several resolver
// units of one job routinely need the same entity type at once.
package graphdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/BioMedGraphica/conn-backend/pkg/bmg"
	"github.com/BioMedGraphica/conn-backend/pkg/logger"
)

var (
	// ErrMappingFileNotFound marks a missing entity reference table.
	ErrMappingFileNotFound = errors.New("entity mapping table not found")

	// ErrEmbeddingsNotFound marks missing reference embeddings for an
	// entity type requested by a soft-match unit.
	ErrEmbeddingsNotFound = errors.New("entity embeddings not found")
)

// DB provides cached access to one reference database root.
type DB struct {
	root string

	mu        sync.RWMutex
	tables    map[string]*EntityTable
	embeds    map[string]*EmbeddingIndex
	relations []Relation

	group singleflight.Group
}

// New creates a DB over the given root directory. The directory is not
// touched until the first load.
func New(root string) *DB {
	return &DB{
		root:   root,
		tables: make(map[string]*EntityTable),
		embeds: make(map[string]*EmbeddingIndex),
	}
}

// Root returns the database root directory.
func (db *DB) Root() string {
	return db.root
}

func (db *DB) entityTablePath(entityType string) string {
	return filepath.Join(db.root, "Entity", entityType, fmt.Sprintf("BioMedGraphica_Conn_%s.csv", entityType))
}

func (db *DB) relationTablePath() string {
	return filepath.Join(db.root, "Relation", "BioMedGraphica_Conn_Relation.csv")
}

func (db *DB) embeddingMatrixPath(entityType string) string {
	return filepath.Join(db.root, "Embed", entityType, fmt.Sprintf("%s_embeddings.npy", entityType))
}

func (db *DB) embeddingIndexPath(entityType string) string {
	return filepath.Join(db.root, "Embed", entityType, fmt.Sprintf("%s_embedding_index.csv", entityType))
}

// Status describes whether the database root looks usable. Served by the
// config status endpoint.
type Status struct {
	Path          string `json:"path"`
	Configured    bool   `json:"configured"`
	EntityDir     bool   `json:"entity_dir"`
	RelationTable bool   `json:"relation_table"`
}

// Ready reports whether processing jobs can run against this database.
func (s Status) Ready() bool {
	return s.Configured && s.EntityDir && s.RelationTable
}

// Check inspects the database root without loading any tables.
func (db *DB) Check() Status {
	status := Status{Path: db.root}
	if db.root == "" {
		return status
	}
	if info, err := os.Stat(db.root); err == nil && info.IsDir() {
		status.Configured = true
	}
	if info, err := os.Stat(filepath.Join(db.root, "Entity")); err == nil && info.IsDir() {
		status.EntityDir = true
	}
	if info, err := os.Stat(db.relationTablePath()); err == nil && !info.IsDir() {
		status.RelationTable = true
	}
	return status
}

// EntityTable returns the cached reference table for an entity type,
// loading it on first use. The type is normalized before the lookup.
func (db *DB) EntityTable(entityType string) (*EntityTable, error) {
	entityType = bmg.NormalizeEntityType(entityType)

	db.mu.RLock()
	if table, ok := db.tables[entityType]; ok {
		db.mu.RUnlock()
		return table, nil
	}
	db.mu.RUnlock()

	result, err, _ := db.group.Do("entity:"+entityType, func() (any, error) {
		db.mu.RLock()
		if table, ok := db.tables[entityType]; ok {
			db.mu.RUnlock()
			return table, nil
		}
		db.mu.RUnlock()

		table, err := loadEntityTable(db.entityTablePath(entityType), entityType)
		if err != nil {
			return nil, err
		}
		logger.Debug("[GraphDB] Entity table loaded",
			"type", entityType,
			"rows", table.Len(),
			"canonical_ids", len(table.CanonicalIDs),
		)

		db.mu.Lock()
		db.tables[entityType] = table
		db.mu.Unlock()

		return table, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*EntityTable), nil
}

// Embeddings returns the cached embedding index for an entity type, loading
// it on first use. The type is normalized before the lookup.
func (db *DB) Embeddings(entityType string) (*EmbeddingIndex, error) {
	entityType = bmg.NormalizeEntityType(entityType)

	db.mu.RLock()
	if index, ok := db.embeds[entityType]; ok {
		db.mu.RUnlock()
		return index, nil
	}
	db.mu.RUnlock()

	result, err, _ := db.group.Do("embed:"+entityType, func() (any, error) {
		db.mu.RLock()
		if index, ok := db.embeds[entityType]; ok {
			db.mu.RUnlock()
			return index, nil
		}
		db.mu.RUnlock()

		index, err := loadEmbeddingIndex(db.embeddingMatrixPath(entityType), db.embeddingIndexPath(entityType), entityType)
		if err != nil {
			return nil, err
		}
		logger.Debug("[GraphDB] Embedding index loaded",
			"type", entityType,
			"entries", len(index.IDs),
			"dim", index.Dim(),
		)

		db.mu.Lock()
		db.embeds[entityType] = index
		db.mu.Unlock()

		return index, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*EmbeddingIndex), nil
}

// Relations returns the cached global relation table, loading it on first
// use.
func (db *DB) Relations() ([]Relation, error) {
	db.mu.RLock()
	if db.relations != nil {
		relations := db.relations
		db.mu.RUnlock()
		return relations, nil
	}
	db.mu.RUnlock()

	result, err, _ := db.group.Do("relations", func() (any, error) {
		db.mu.RLock()
		if db.relations != nil {
			relations := db.relations
			db.mu.RUnlock()
			return relations, nil
		}
		db.mu.RUnlock()

		relations, err := loadRelations(db.relationTablePath())
		if err != nil {
			return nil, err
		}

		db.mu.Lock()
		db.relations = relations
		db.mu.Unlock()

		return relations, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]Relation), nil
}
