package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/faustostangler/FL2-sub000/internal/config"
	"github.com/faustostangler/FL2-sub000/internal/model"
)

// Store is the persistence surface shared by every pipeline. All save
// operations are idempotent upserts keyed by the entity's primary key;
// raw-statement upserts preserve the processed flag only while the
// incoming version matches the stored one.
type Store interface {
	// Companies
	SaveCompanies(ctx context.Context, companies []model.Company) error
	ListCompanies(ctx context.Context) ([]model.Company, error)
	ListCompanyCVMCodes(ctx context.Context) ([]string, error)
	GetCompany(ctx context.Context, cvmCode string) (*model.Company, error)

	// NSDs
	SaveNSDs(ctx context.Context, nsds []model.NSD) error
	MaxNSD(ctx context.Context) (int, time.Time, error)
	CountNSDsSince(ctx context.Context, cutoff time.Time) (int, error)
	ListNSDNumbers(ctx context.Context) ([]int, error)
	ListNSDsByTypes(ctx context.Context, types []string) ([]model.NSD, error)
	GetNSD(ctx context.Context, nsd int) (*model.NSD, error)

	// Raw statements
	SaveRawStatements(ctx context.Context, rows []model.StatementRow) error
	ListRawStatementNSDs(ctx context.Context) ([]int, error)
	LoadCompanyStatements(ctx context.Context, companyName string) ([]model.StatementRow, error)

	// Normalization
	ListPendingCompanies(ctx context.Context) ([]string, error)
	SaveNormalizedAndMark(ctx context.Context, companyName string, rows []model.NormalizedRow) error
	ListNormalized(ctx context.Context, companyName string) ([]model.NormalizedRow, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned by single-row getters when no row matches.
var ErrNotFound = eris.New("store: not found")

// Open builds the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
