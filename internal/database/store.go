package database

import (
	"context"
	"fmt"

	"github.com/ThiagoRGoveia/stocks-dossier/internal/config"
	"github.com/ThiagoRGoveia/stocks-dossier/internal/models"
)

// Collection is the destination of one record kind.
type Collection interface {
	// Insert persists a single record and returns the identifier the store assigned to it.
	Insert(ctx context.Context, record models.Record) (string, error)
}

type RecordStore interface {
	Collection(kind models.RecordKind) Collection
	InsertFileRecord(ctx context.Context, record *models.FileRecord) error
	EnsureSchema(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects to the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (RecordStore, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return ConnectMongo(ctx, cfg)
	case config.DriverPostgres:
		return ConnectPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
