package partsdb

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// ErrDimensions is returned when a catalog built for one embedding size is
// opened with another. Stored vectors cannot be resized in place; reseed.
var ErrDimensions = errors.New("partsdb: embedding dimensions differ from the catalog's")

// Store is the parts catalog: structured tables plus similarity vectors over
// part texts. It is safe for concurrent use.
type Store struct {
	db       *sql.DB
	embedder Embedder
	dims     int
}

type Options struct {
	// Dimensions of the part similarity vectors; defaults to VectorDimensions.
	Dimensions int
}

func Open(path string) (*Store, error) {
	return OpenWithOptions(path, Options{})
}

func OpenWithOptions(path string, opts Options) (*Store, error) {
	dims := opts.Dimensions
	if dims <= 0 {
		dims = VectorDimensions
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// each pooled connection would be a separate empty database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, dims: dims}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) init() error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := s.db.Exec(pragma); err != nil {
			return err
		}
	}

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.checkDimensions()
}

// checkDimensions pins the embedding size on first open and refuses a
// different one afterwards.
func (s *Store) checkDimensions() error {
	var stored string
	err := s.db.QueryRow(`SELECT value FROM catalog_meta WHERE key = 'embedding_dims'`).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.Exec(`INSERT INTO catalog_meta (key, value) VALUES ('embedding_dims', ?)`, strconv.Itoa(s.dims))
		return err
	}
	if err != nil {
		return err
	}
	if stored != strconv.Itoa(s.dims) {
		return fmt.Errorf("%w: catalog has %s, configured %d", ErrDimensions, stored, s.dims)
	}
	return nil
}

func (s *Store) SetEmbedder(e Embedder) { s.embedder = e }

func (s *Store) HasEmbedder() bool { return s.embedder != nil }

func (s *Store) Dimensions() int { return s.dims }

// VecVersion reports the loaded sqlite-vec extension version.
func (s *Store) VecVersion() (string, error) {
	var v string
	err := s.db.QueryRow("SELECT vec_version()").Scan(&v)
	return v, err
}

// DB exposes the handle so the session store and usage ledger can share the
// catalog file.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
