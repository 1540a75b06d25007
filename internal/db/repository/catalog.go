package repository

import (
	"database/sql"

	"duck-ingest/internal/db/crypto"
	"duck-ingest/internal/domain"
)

var (
	_ domain.MetadataCatalog = (*Catalog)(nil)
	_ domain.ConfigWriter    = (*Catalog)(nil)
)

// Catalog is the SQLite metadata catalog. Writes go through the
// single-connection write pool; reads use the read pool.
type Catalog struct {
	writeDB *sql.DB
	readDB  *sql.DB
	sealer  *crypto.Sealer
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithSealer encrypts source-system DSNs at rest.
func WithSealer(s *crypto.Sealer) CatalogOption {
	return func(c *Catalog) { c.sealer = s }
}

// NewCatalog creates a Catalog. readDB may be nil, in which case writeDB
// serves reads as well.
func NewCatalog(writeDB, readDB *sql.DB, opts ...CatalogOption) *Catalog {
	if readDB == nil {
		readDB = writeDB
	}
	c := &Catalog{writeDB: writeDB, readDB: readDB}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
