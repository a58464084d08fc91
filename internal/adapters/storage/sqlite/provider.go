// Package sqlite provides the SQLite storage adapter for the council.
package sqlite

import (
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/storage/sqlite"
)

// Provider implements ports.StorageProvider using SQLite.
type Provider struct {
	*sqlite.Store
}

// NewProvider opens the database at path.
func NewProvider(path string) (*Provider, error) {
	store, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	return &Provider{Store: store}, nil
}

var _ ports.StorageProvider = (*Provider)(nil)
var _ ports.Pinger = (*Provider)(nil)
