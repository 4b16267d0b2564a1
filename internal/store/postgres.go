package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/faustostangler/FL2-sub000/internal/db"
	"github.com/faustostangler/FL2-sub000/internal/model"
)

// PostgresStore implements Store using pgxpool. Trigger semantics for
// the pending-companies table match the sqlite backend exactly.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; tests hand in a pgxmock
// pool here.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
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
	ticker_codes          JSONB,
	isin_codes            JSONB,
	listing_segment       TEXT,
	registrar_name        TEXT,
	website               TEXT,
	market                TEXT,
	market_indicator      TEXT,
	status                TEXT,
	type_bdr              TEXT,
	describe_category_bdr TEXT,
	has_quotation         BOOLEAN NOT NULL DEFAULT FALSE,
	has_emissions         BOOLEAN NOT NULL DEFAULT FALSE,
	has_bdr               BOOLEAN NOT NULL DEFAULT FALSE,
	institution_common    TEXT,
	institution_preferred TEXT,
	date_listing          TIMESTAMPTZ,
	last_date             TIMESTAMPTZ,
	date_quotation        TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS nsd (
	nsd                 BIGINT PRIMARY KEY,
	company_name        TEXT NOT NULL,
	quarter             DATE NOT NULL,
	version             INT NOT NULL,
	nsd_type            TEXT NOT NULL,
	dri                 TEXT,
	auditor             TEXT,
	responsible_auditor TEXT,
	protocol            TEXT,
	sent_date           TIMESTAMPTZ NOT NULL,
	reason              TEXT,
	hash                TEXT
);

CREATE INDEX IF NOT EXISTS idx_nsd_company ON nsd(company_name);
CREATE INDEX IF NOT EXISTS idx_nsd_sent_date ON nsd(sent_date);

CREATE TABLE IF NOT EXISTS raw_statements (
	company_name TEXT NOT NULL,
	quarter      DATE NOT NULL,
	version      INT NOT NULL,
	nsd_type     TEXT NOT NULL,
	frame        TEXT NOT NULL,
	account      TEXT NOT NULL,
	description  TEXT,
	value        DOUBLE PRECISION,
	nsd          BIGINT,
	sector       TEXT,
	subsector    TEXT,
	segment      TEXT,
	processed    INT,
	PRIMARY KEY (company_name, quarter, version, nsd_type, frame, account)
);

CREATE INDEX IF NOT EXISTS idx_raw_statements_nsd ON raw_statements(nsd);

CREATE TABLE IF NOT EXISTS normalized_statements (
	company_name      TEXT NOT NULL,
	quarter           DATE NOT NULL,
	version           INT NOT NULL,
	nsd_type          TEXT NOT NULL,
	frame             TEXT NOT NULL,
	account           TEXT NOT NULL,
	description       TEXT,
	value             DOUBLE PRECISION,
	original_value    DOUBLE PRECISION,
	nsd               BIGINT,
	sector            TEXT,
	subsector         TEXT,
	segment           TEXT,
	standard_criteria TEXT,
	PRIMARY KEY (company_name, quarter, version, nsd_type, frame, account)
);

CREATE TABLE IF NOT EXISTS pending_companies (
	company_name TEXT PRIMARY KEY
);

CREATE OR REPLACE FUNCTION raw_statements_pending_add() RETURNS trigger AS $$
BEGIN
	IF NEW.processed IS NULL OR NEW.processed <> NEW.version THEN
		INSERT INTO pending_companies (company_name) VALUES (NEW.company_name)
		ON CONFLICT DO NOTHING;
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE FUNCTION raw_statements_pending_update() RETURNS trigger AS $$
BEGIN
	IF NEW.processed = NEW.version THEN
		DELETE FROM pending_companies p
		WHERE p.company_name = NEW.company_name
		  AND NOT EXISTS (
			SELECT 1 FROM raw_statements r
			WHERE r.company_name = NEW.company_name
			  AND (r.processed IS NULL OR r.processed <> r.version)
		  );
	ELSE
		INSERT INTO pending_companies (company_name) VALUES (NEW.company_name)
		ON CONFLICT DO NOTHING;
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_raw_insert_pending ON raw_statements;
CREATE TRIGGER trg_raw_insert_pending
	AFTER INSERT ON raw_statements
	FOR EACH ROW EXECUTE FUNCTION raw_statements_pending_add();

DROP TRIGGER IF EXISTS trg_raw_update_pending ON raw_statements;
CREATE TRIGGER trg_raw_update_pending
	AFTER UPDATE OF processed ON raw_statements
	FOR EACH ROW EXECUTE FUNCTION raw_statements_pending_update();
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- companies ---

var companyColumns = []string{
	"cvm_code", "issuing_company", "company_name", "trading_name", "cnpj",
	"sector", "subsector", "segment", "segment_eng", "ticker_codes", "isin_codes",
	"listing_segment", "registrar_name", "website", "market", "market_indicator",
	"status", "type_bdr", "describe_category_bdr", "has_quotation", "has_emissions",
	"has_bdr", "institution_common", "institution_preferred", "date_listing",
	"last_date", "date_quotation",
}

func (s *PostgresStore) SaveCompanies(ctx context.Context, companies []model.Company) error {
	if len(companies) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(companies))
	for i := range companies {
		c := &companies[i]
		if err := c.Validate(); err != nil {
			return err
		}
		tickers, _ := json.Marshal(c.TickerCodes)
		isins, _ := json.Marshal(c.ISINCodes)
		rows = append(rows, []any{
			c.CVMCode, c.IssuingCompany, c.CompanyName, c.TradingName, c.CNPJ,
			c.Sector, c.Subsector, c.Segment, c.SegmentEng, string(tickers), string(isins),
			c.ListingSegment, c.RegistrarName, c.Website, c.Market, c.MarketIndicator,
			c.Status, c.TypeBDR, c.DescribeCategory, c.HasQuotation, c.HasEmissions,
			c.HasBDR, c.InstitutionCommon, c.InstitutionPreferred, timeOrNil(c.DateListing),
			timeOrNil(c.LastDate), timeOrNil(c.DateQuotation),
		})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "company",
		Columns:      companyColumns,
		ConflictKeys: []string{"cvm_code"},
	}, rows)
	return err
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

const companySelect = `SELECT cvm_code, issuing_company, company_name, trading_name, cnpj,
	sector, subsector, segment, segment_eng, ticker_codes, isin_codes,
	listing_segment, registrar_name, website, market, market_indicator,
	status, type_bdr, describe_category_bdr, has_quotation, has_emissions,
	has_bdr, institution_common, institution_preferred, date_listing,
	last_date, date_quotation FROM company`

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx, companySelect+` ORDER BY cvm_code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		c, err := scanPgCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func (s *PostgresStore) GetCompany(ctx context.Context, cvmCode string) (*model.Company, error) {
	rows, err := s.pool.Query(ctx, companySelect+` WHERE cvm_code = $1`, cvmCode)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get company")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "postgres: get company iterate")
		}
		return nil, ErrNotFound
	}
	return scanPgCompany(rows)
}

func scanPgCompany(rows pgx.Rows) (*model.Company, error) {
	var c model.Company
	var tickers, isins []byte
	var listing, last, quotation *time.Time
	err := rows.Scan(
		&c.CVMCode, &c.IssuingCompany, &c.CompanyName, &c.TradingName, &c.CNPJ,
		&c.Sector, &c.Subsector, &c.Segment, &c.SegmentEng, &tickers, &isins,
		&c.ListingSegment, &c.RegistrarName, &c.Website, &c.Market, &c.MarketIndicator,
		&c.Status, &c.TypeBDR, &c.DescribeCategory, &c.HasQuotation, &c.HasEmissions,
		&c.HasBDR, &c.InstitutionCommon, &c.InstitutionPreferred, &listing,
		&last, &quotation,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan company")
	}
	if len(tickers) > 0 {
		if err := json.Unmarshal(tickers, &c.TickerCodes); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal ticker codes")
		}
	}
	if len(isins) > 0 {
		if err := json.Unmarshal(isins, &c.ISINCodes); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal isin codes")
		}
	}
	if listing != nil {
		c.DateListing = *listing
	}
	if last != nil {
		c.LastDate = *last
	}
	if quotation != nil {
		c.DateQuotation = *quotation
	}
	return &c, nil
}

func (s *PostgresStore) ListCompanyCVMCodes(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.pool, `SELECT DISTINCT cvm_code FROM company ORDER BY cvm_code`, "postgres: list cvm codes")
}

func queryStrings(ctx context.Context, pool db.Pool, sql, label string, args ...any) ([]string, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, label)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, label)
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), label)
}

func queryInts(ctx context.Context, pool db.Pool, sql, label string, args ...any) ([]int, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, label)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, label)
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), label)
}

// --- nsds ---

var nsdColumns = []string{
	"nsd", "company_name", "quarter", "version", "nsd_type", "dri", "auditor",
	"responsible_auditor", "protocol", "sent_date", "reason", "hash",
}

func (s *PostgresStore) SaveNSDs(ctx context.Context, nsds []model.NSD) error {
	if len(nsds) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(nsds))
	for i := range nsds {
		n := &nsds[i]
		if err := n.Validate(); err != nil {
			return err
		}
		rows = append(rows, []any{
			n.NSD, n.CompanyName, n.Quarter, n.Version, n.NSDType, n.DRI, n.Auditor,
			n.ResponsibleAuditor, n.Protocol, n.SentDate.UTC(), n.Reason, n.Hash,
		})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "nsd",
		Columns:      nsdColumns,
		ConflictKeys: []string{"nsd"},
	}, rows)
	return err
}

const nsdSelect = `SELECT nsd, company_name, quarter, version, nsd_type, dri, auditor,
	responsible_auditor, protocol, sent_date, reason, COALESCE(hash, '') FROM nsd`

func (s *PostgresStore) MaxNSD(ctx context.Context) (int, time.Time, error) {
	rows, err := s.pool.Query(ctx, `SELECT nsd, sent_date FROM nsd ORDER BY nsd DESC LIMIT 1`)
	if err != nil {
		return 0, time.Time{}, eris.Wrap(err, "postgres: max nsd")
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, time.Time{}, eris.Wrap(rows.Err(), "postgres: max nsd iterate")
	}
	var n int
	var sent time.Time
	if err := rows.Scan(&n, &sent); err != nil {
		return 0, time.Time{}, eris.Wrap(err, "postgres: scan max nsd")
	}
	return n, sent, nil
}

func (s *PostgresStore) CountNSDsSince(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM nsd WHERE sent_date >= $1`, cutoff.UTC()).Scan(&n)
	return n, eris.Wrap(err, "postgres: count nsds since")
}

func (s *PostgresStore) ListNSDNumbers(ctx context.Context) ([]int, error) {
	return queryInts(ctx, s.pool, `SELECT nsd FROM nsd ORDER BY nsd`, "postgres: list nsd numbers")
}

func (s *PostgresStore) ListNSDsByTypes(ctx context.Context, types []string) ([]model.NSD, error) {
	sql := nsdSelect
	var args []any
	if len(types) > 0 {
		sql += ` WHERE nsd_type = ANY($1)`
		args = append(args, types)
	}
	sql += ` ORDER BY company_name, quarter, nsd`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list nsds by type")
	}
	defer rows.Close()

	var out []model.NSD
	for rows.Next() {
		n, err := scanPgNSD(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list nsds iterate")
}

func (s *PostgresStore) GetNSD(ctx context.Context, nsd int) (*model.NSD, error) {
	rows, err := s.pool.Query(ctx, nsdSelect+` WHERE nsd = $1`, nsd)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get nsd")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "postgres: get nsd iterate")
		}
		return nil, ErrNotFound
	}
	return scanPgNSD(rows)
}

func scanPgNSD(rows pgx.Rows) (*model.NSD, error) {
	var n model.NSD
	err := rows.Scan(
		&n.NSD, &n.CompanyName, &n.Quarter, &n.Version, &n.NSDType, &n.DRI, &n.Auditor,
		&n.ResponsibleAuditor, &n.Protocol, &n.SentDate, &n.Reason, &n.Hash,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan nsd")
	}
	return &n, nil
}

// --- raw statements ---

var rawColumns = []string{
	"company_name", "quarter", "version", "nsd_type", "frame", "account",
	"description", "value", "nsd", "sector", "subsector", "segment", "processed",
}

func (s *PostgresStore) SaveRawStatements(ctx context.Context, stmts []model.StatementRow) error {
	if len(stmts) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(stmts))
	for i := range stmts {
		r := &stmts[i]
		rows = append(rows, []any{
			r.CompanyName, r.Quarter, r.Version, r.NSDType, r.Frame, r.Account,
			r.Description, r.Value, r.NSD, r.Sector, r.Subsector, r.Segment,
			r.Processed,
		})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "raw_statements",
		Columns:      rawColumns,
		ConflictKeys: []string{"company_name", "quarter", "version", "nsd_type", "frame", "account"},
		UpdateExprs: map[string]string{
			"processed": "CASE WHEN raw_statements.version = EXCLUDED.version THEN raw_statements.processed ELSE NULL END",
		},
	}, rows)
	return err
}

func (s *PostgresStore) ListRawStatementNSDs(ctx context.Context) ([]int, error) {
	return queryInts(ctx, s.pool,
		`SELECT DISTINCT nsd FROM raw_statements WHERE nsd IS NOT NULL ORDER BY nsd`,
		"postgres: list raw nsds")
}

const rawSelect = `SELECT company_name, quarter, version, nsd_type, frame, account,
	description, value, nsd, sector, subsector, segment, processed
	FROM raw_statements`

func (s *PostgresStore) LoadCompanyStatements(ctx context.Context, companyName string) ([]model.StatementRow, error) {
	rows, err := s.pool.Query(ctx, rawSelect+`
		WHERE company_name = $1
		  AND EXTRACT(YEAR FROM quarter) IN (
			SELECT DISTINCT EXTRACT(YEAR FROM quarter) FROM raw_statements
			WHERE company_name = $1 AND (processed IS NULL OR processed <> version)
		  )
		ORDER BY quarter, nsd_type, frame, account, version`,
		companyName,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load company statements")
	}
	defer rows.Close()

	var out []model.StatementRow
	for rows.Next() {
		var r model.StatementRow
		err := rows.Scan(
			&r.CompanyName, &r.Quarter, &r.Version, &r.NSDType, &r.Frame, &r.Account,
			&r.Description, &r.Value, &r.NSD, &r.Sector, &r.Subsector, &r.Segment,
			&r.Processed,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw statement")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: load company statements iterate")
}

// --- normalization ---

func (s *PostgresStore) ListPendingCompanies(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.pool,
		`SELECT company_name FROM pending_companies ORDER BY company_name`,
		"postgres: list pending companies")
}

var normalizedColumns = []string{
	"company_name", "quarter", "version", "nsd_type", "frame", "account",
	"description", "value", "original_value", "nsd", "sector",
	"subsector", "segment", "standard_criteria",
}

func (s *PostgresStore) SaveNormalizedAndMark(ctx context.Context, companyName string, norm []model.NormalizedRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save normalized")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if len(norm) > 0 {
		cols := quotedJoin(normalizedColumns)
		for i := range norm {
			r := &norm[i]
			_, err := tx.Exec(ctx, `
				INSERT INTO normalized_statements (`+cols+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
				ON CONFLICT (company_name, quarter, version, nsd_type, frame, account) DO UPDATE SET
					description=EXCLUDED.description,
					value=EXCLUDED.value,
					original_value=EXCLUDED.original_value,
					nsd=EXCLUDED.nsd,
					sector=EXCLUDED.sector,
					subsector=EXCLUDED.subsector,
					segment=EXCLUDED.segment,
					standard_criteria=EXCLUDED.standard_criteria`,
				r.CompanyName, r.Quarter, r.Version, r.NSDType, r.Frame, r.Account,
				r.Description, r.Value, r.OriginalValue, r.NSD,
				r.Sector, r.Subsector, r.Segment, r.StandardCriteria,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: upsert normalized statement %s", r.Key())
			}
		}
	}

	const pendingWhere = `company_name = $1 AND (processed IS NULL OR processed <> version)`

	var before int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM raw_statements WHERE `+pendingWhere, companyName,
	).Scan(&before); err != nil {
		return eris.Wrap(err, "postgres: count unprocessed before")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE raw_statements SET processed = version WHERE `+pendingWhere, companyName,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark processed %s", companyName)
	}

	var after int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM raw_statements WHERE `+pendingWhere, companyName,
	).Scan(&after); err != nil {
		return eris.Wrap(err, "postgres: count unprocessed after")
	}

	if delta := int64(before - after); delta != tag.RowsAffected() {
		zap.L().Warn("postgres: processed flip rowcount mismatch",
			zap.String("company", companyName),
			zap.Int64("reported", tag.RowsAffected()),
			zap.Int64("recounted", delta),
		)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit save normalized")
}

func (s *PostgresStore) ListNormalized(ctx context.Context, companyName string) ([]model.NormalizedRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+quotedJoin(normalizedColumns)+` FROM normalized_statements
		WHERE company_name = $1
		ORDER BY quarter, nsd_type, frame, account`,
		companyName,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list normalized")
	}
	defer rows.Close()

	var out []model.NormalizedRow
	for rows.Next() {
		var r model.NormalizedRow
		err := rows.Scan(
			&r.CompanyName, &r.Quarter, &r.Version, &r.NSDType, &r.Frame, &r.Account,
			&r.Description, &r.Value, &r.OriginalValue, &r.NSD,
			&r.Sector, &r.Subsector, &r.Segment, &r.StandardCriteria,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan normalized")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list normalized iterate")
}

func quotedJoin(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
