package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/faustostangler/FL2-sub000/internal/model"
)

const dateLayout = "2006-01-02"

// SQLiteStore implements Store using modernc.org/sqlite. Reads go
// straight to the pool; writes serialize on a process-wide mutex on
// top of WAL so one writer never trips another's busy timeout.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures
// WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS company (
	cvm_code              TEXT PRIMARY KEY,
	issuing_company       TEXT,
	company_name          TEXT,
	trading_name          TEXT,
	cnpj                  TEXT,
	sector                TEXT,
	subsector             TEXT,
	segment               TEXT,
	segment_eng           TEXT,
	ticker_codes          TEXT,
	isin_codes            TEXT,
	listing_segment       TEXT,
	registrar_name        TEXT,
	website               TEXT,
	market                TEXT,
	market_indicator      TEXT,
	status                TEXT,
	type_bdr              TEXT,
	describe_category_bdr TEXT,
	has_quotation         INTEGER NOT NULL DEFAULT 0,
	has_emissions         INTEGER NOT NULL DEFAULT 0,
	has_bdr               INTEGER NOT NULL DEFAULT 0,
	institution_common    TEXT,
	institution_preferred TEXT,
	date_listing          TEXT,
	last_date             TEXT,
	date_quotation        TEXT
);

CREATE TABLE IF NOT EXISTS nsd (
	nsd                 INTEGER PRIMARY KEY,
	company_name        TEXT NOT NULL,
	quarter             TEXT NOT NULL,
	version             INTEGER NOT NULL,
	nsd_type            TEXT NOT NULL,
	dri                 TEXT,
	auditor             TEXT,
	responsible_auditor TEXT,
	protocol            TEXT,
	sent_date           TEXT NOT NULL,
	reason              TEXT,
	hash                TEXT
);

CREATE INDEX IF NOT EXISTS idx_nsd_company ON nsd(company_name);
CREATE INDEX IF NOT EXISTS idx_nsd_sent_date ON nsd(sent_date);

CREATE TABLE IF NOT EXISTS raw_statements (
	company_name TEXT NOT NULL,
	quarter      TEXT NOT NULL,
	version      INTEGER NOT NULL,
	nsd_type     TEXT NOT NULL,
	frame        TEXT NOT NULL,
	account      TEXT NOT NULL,
	description  TEXT,
	value        REAL,
	nsd          INTEGER,
	sector       TEXT,
	subsector    TEXT,
	segment      TEXT,
	processed    INTEGER,
	PRIMARY KEY (company_name, quarter, version, nsd_type, frame, account)
);

CREATE INDEX IF NOT EXISTS idx_raw_statements_nsd ON raw_statements(nsd);

CREATE TABLE IF NOT EXISTS normalized_statements (
	company_name      TEXT NOT NULL,
	quarter           TEXT NOT NULL,
	version           INTEGER NOT NULL,
	nsd_type          TEXT NOT NULL,
	frame             TEXT NOT NULL,
	account           TEXT NOT NULL,
	description       TEXT,
	value             REAL,
	original_value    REAL,
	nsd               INTEGER,
	sector            TEXT,
	subsector         TEXT,
	segment           TEXT,
	standard_criteria TEXT,
	PRIMARY KEY (company_name, quarter, version, nsd_type, frame, account)
);

CREATE TABLE IF NOT EXISTS pending_companies (
	company_name TEXT PRIMARY KEY
);

CREATE TRIGGER IF NOT EXISTS trg_raw_insert_pending
AFTER INSERT ON raw_statements
WHEN NEW.processed IS NULL OR NEW.processed <> NEW.version
BEGIN
	INSERT OR IGNORE INTO pending_companies (company_name) VALUES (NEW.company_name);
END;

CREATE TRIGGER IF NOT EXISTS trg_raw_processed_done
AFTER UPDATE OF processed ON raw_statements
WHEN NEW.processed = NEW.version
BEGIN
	DELETE FROM pending_companies
	WHERE company_name = NEW.company_name
	  AND NOT EXISTS (
		SELECT 1 FROM raw_statements r
		WHERE r.company_name = NEW.company_name
		  AND (r.processed IS NULL OR r.processed <> r.version)
	  );
END;

CREATE TRIGGER IF NOT EXISTS trg_raw_processed_undone
AFTER UPDATE OF processed ON raw_statements
WHEN NEW.processed IS NULL OR NEW.processed <> NEW.version
BEGIN
	INSERT OR IGNORE INTO pending_companies (company_name) VALUES (NEW.company_name);
END;
`

// Migrate creates the schema, indexes and the pending-companies
// triggers.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the underlying pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- companies ---

const companyCols = `cvm_code, issuing_company, company_name, trading_name, cnpj,
	sector, subsector, segment, segment_eng, ticker_codes, isin_codes,
	listing_segment, registrar_name, website, market, market_indicator,
	status, type_bdr, describe_category_bdr, has_quotation, has_emissions,
	has_bdr, institution_common, institution_preferred, date_listing,
	last_date, date_quotation`

func (s *SQLiteStore) SaveCompanies(ctx context.Context, companies []model.Company) error {
	if len(companies) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save companies")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO company (`+companyCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(cvm_code) DO UPDATE SET
			issuing_company=excluded.issuing_company,
			company_name=excluded.company_name,
			trading_name=excluded.trading_name,
			cnpj=excluded.cnpj,
			sector=excluded.sector,
			subsector=excluded.subsector,
			segment=excluded.segment,
			segment_eng=excluded.segment_eng,
			ticker_codes=excluded.ticker_codes,
			isin_codes=excluded.isin_codes,
			listing_segment=excluded.listing_segment,
			registrar_name=excluded.registrar_name,
			website=excluded.website,
			market=excluded.market,
			market_indicator=excluded.market_indicator,
			status=excluded.status,
			type_bdr=excluded.type_bdr,
			describe_category_bdr=excluded.describe_category_bdr,
			has_quotation=excluded.has_quotation,
			has_emissions=excluded.has_emissions,
			has_bdr=excluded.has_bdr,
			institution_common=excluded.institution_common,
			institution_preferred=excluded.institution_preferred,
			date_listing=excluded.date_listing,
			last_date=excluded.last_date,
			date_quotation=excluded.date_quotation`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare company upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range companies {
		c := &companies[i]
		if err := c.Validate(); err != nil {
			return err
		}
		tickers, _ := json.Marshal(c.TickerCodes)
		isins, _ := json.Marshal(c.ISINCodes)
		_, err := stmt.ExecContext(ctx,
			c.CVMCode, c.IssuingCompany, c.CompanyName, c.TradingName, c.CNPJ,
			c.Sector, c.Subsector, c.Segment, c.SegmentEng, string(tickers), string(isins),
			c.ListingSegment, c.RegistrarName, c.Website, c.Market, c.MarketIndicator,
			c.Status, c.TypeBDR, c.DescribeCategory, c.HasQuotation, c.HasEmissions,
			c.HasBDR, c.InstitutionCommon, c.InstitutionPreferred, dateOrNull(c.DateListing),
			dateOrNull(c.LastDate), dateOrNull(c.DateQuotation),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert company %s", c.CVMCode)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save companies")
}

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+companyCols+` FROM company ORDER BY cvm_code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

func (s *SQLiteStore) ListCompanyCVMCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT cvm_code FROM company ORDER BY cvm_code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cvm codes")
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cvm code")
		}
		out = append(out, code)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list cvm codes iterate")
}

func (s *SQLiteStore) GetCompany(ctx context.Context, cvmCode string) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+companyCols+` FROM company WHERE cvm_code = ?`, cvmCode)
	c, err := scanCompany(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCompany(row scannable) (*model.Company, error) {
	var c model.Company
	var tickers, isins sql.NullString
	var listing, last, quotation sql.NullString
	err := row.Scan(
		&c.CVMCode, &c.IssuingCompany, &c.CompanyName, &c.TradingName, &c.CNPJ,
		&c.Sector, &c.Subsector, &c.Segment, &c.SegmentEng, &tickers, &isins,
		&c.ListingSegment, &c.RegistrarName, &c.Website, &c.Market, &c.MarketIndicator,
		&c.Status, &c.TypeBDR, &c.DescribeCategory, &c.HasQuotation, &c.HasEmissions,
		&c.HasBDR, &c.InstitutionCommon, &c.InstitutionPreferred, &listing,
		&last, &quotation,
	)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, eris.Wrap(err, "sqlite: scan company")
	}
	if tickers.Valid && tickers.String != "" {
		if err := json.Unmarshal([]byte(tickers.String), &c.TickerCodes); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal ticker codes")
		}
	}
	if isins.Valid && isins.String != "" {
		if err := json.Unmarshal([]byte(isins.String), &c.ISINCodes); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal isin codes")
		}
	}
	c.DateListing = parseStoredDate(listing)
	c.LastDate = parseStoredDate(last)
	c.DateQuotation = parseStoredDate(quotation)
	return &c, nil
}

func dateOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseStoredDate(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, dateLayout} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return t
		}
	}
	return time.Time{}
}

// --- nsds ---

const nsdCols = `nsd, company_name, quarter, version, nsd_type, dri, auditor,
	responsible_auditor, protocol, sent_date, reason, hash`

func (s *SQLiteStore) SaveNSDs(ctx context.Context, nsds []model.NSD) error {
	if len(nsds) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save nsds")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nsd (`+nsdCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(nsd) DO UPDATE SET
			company_name=excluded.company_name,
			quarter=excluded.quarter,
			version=excluded.version,
			nsd_type=excluded.nsd_type,
			dri=excluded.dri,
			auditor=excluded.auditor,
			responsible_auditor=excluded.responsible_auditor,
			protocol=excluded.protocol,
			sent_date=excluded.sent_date,
			reason=excluded.reason,
			hash=excluded.hash`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare nsd upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range nsds {
		n := &nsds[i]
		if err := n.Validate(); err != nil {
			return err
		}
		_, err := stmt.ExecContext(ctx,
			n.NSD, n.CompanyName, n.Quarter.Format(dateLayout), n.Version, n.NSDType,
			n.DRI, n.Auditor, n.ResponsibleAuditor, n.Protocol,
			n.SentDate.UTC().Format(time.RFC3339), n.Reason, n.Hash,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert nsd %d", n.NSD)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save nsds")
}

func (s *SQLiteStore) MaxNSD(ctx context.Context) (int, time.Time, error) {
	row := s.db.QueryRowContext(ctx, `SELECT nsd, sent_date FROM nsd ORDER BY nsd DESC LIMIT 1`)
	var n int
	var sent string
	err := row.Scan(&n, &sent)
	if eris.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, eris.Wrap(err, "sqlite: max nsd")
	}
	t, err := time.Parse(time.RFC3339, sent)
	if err != nil {
		return 0, time.Time{}, eris.Wrap(err, "sqlite: parse max nsd sent_date")
	}
	return n, t, nil
}

func (s *SQLiteStore) CountNSDsSince(ctx context.Context, cutoff time.Time) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nsd WHERE sent_date >= ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count nsds since")
	}
	return n, nil
}

func (s *SQLiteStore) ListNSDNumbers(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT nsd FROM nsd ORDER BY nsd`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list nsd numbers")
	}
	defer rows.Close() //nolint:errcheck

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan nsd number")
		}
		out = append(out, n)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list nsd numbers iterate")
}

func (s *SQLiteStore) ListNSDsByTypes(ctx context.Context, types []string) ([]model.NSD, error) {
	query := `SELECT ` + nsdCols + ` FROM nsd`
	var args []any
	if len(types) > 0 {
		query += ` WHERE nsd_type IN (?` + strings.Repeat(",?", len(types)-1) + `)`
		for _, t := range types {
			args = append(args, t)
		}
	}
	query += ` ORDER BY company_name, quarter, nsd`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list nsds by type")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.NSD
	for rows.Next() {
		n, err := scanNSD(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list nsds iterate")
}

func (s *SQLiteStore) GetNSD(ctx context.Context, nsd int) (*model.NSD, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nsdCols+` FROM nsd WHERE nsd = ?`, nsd)
	n, err := scanNSD(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

func scanNSD(row scannable) (*model.NSD, error) {
	var n model.NSD
	var quarter, sent string
	var hash sql.NullString
	err := row.Scan(
		&n.NSD, &n.CompanyName, &quarter, &n.Version, &n.NSDType,
		&n.DRI, &n.Auditor, &n.ResponsibleAuditor, &n.Protocol,
		&sent, &n.Reason, &hash,
	)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, eris.Wrap(err, "sqlite: scan nsd")
	}
	if n.Quarter, err = time.Parse(dateLayout, quarter); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse nsd quarter")
	}
	if n.SentDate, err = time.Parse(time.RFC3339, sent); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse nsd sent_date")
	}
	n.Hash = hash.String
	return &n, nil
}
