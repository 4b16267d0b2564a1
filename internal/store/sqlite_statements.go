package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/faustostangler/FL2-sub000/internal/model"
)

const rawCols = `company_name, quarter, version, nsd_type, frame, account,
	description, value, nsd, sector, subsector, segment, processed`

// SaveRawStatements upserts a batch of raw rows in one transaction.
// On conflict every non-key column is overwritten except processed,
// which survives only while the stored version equals the incoming
// one; a version change resets it to NULL so the company re-enters the
// pending queue via the insert trigger.
func (s *SQLiteStore) SaveRawStatements(ctx context.Context, rows []model.StatementRow) error {
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save raw statements")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_statements (`+rawCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(company_name, quarter, version, nsd_type, frame, account) DO UPDATE SET
			description=excluded.description,
			value=excluded.value,
			nsd=excluded.nsd,
			sector=excluded.sector,
			subsector=excluded.subsector,
			segment=excluded.segment,
			processed=CASE
				WHEN raw_statements.version = excluded.version THEN raw_statements.processed
				ELSE NULL
			END`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare raw upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range rows {
		r := &rows[i]
		_, err := stmt.ExecContext(ctx,
			r.CompanyName, r.Quarter.Format(dateLayout), r.Version, r.NSDType, r.Frame, r.Account,
			r.Description, r.Value, r.NSD, r.Sector, r.Subsector, r.Segment,
			intOrNull(r.Processed),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert raw statement %s", r.Key())
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save raw statements")
}

func (s *SQLiteStore) ListRawStatementNSDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT nsd FROM raw_statements ORDER BY nsd`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list raw nsds")
	}
	defer rows.Close() //nolint:errcheck

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw nsd")
		}
		out = append(out, n)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list raw nsds iterate")
}

// LoadCompanyStatements returns every raw row for the company that is
// unprocessed, plus all rows sharing a (company, year) with one, since
// quarter adjustment needs the sibling quarters.
func (s *SQLiteStore) LoadCompanyStatements(ctx context.Context, companyName string) ([]model.StatementRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rawCols+` FROM raw_statements
		WHERE company_name = ?
		  AND substr(quarter, 1, 4) IN (
			SELECT DISTINCT substr(quarter, 1, 4) FROM raw_statements
			WHERE company_name = ? AND (processed IS NULL OR processed <> version)
		  )
		ORDER BY quarter, nsd_type, frame, account, version`,
		companyName, companyName,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load company statements")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StatementRow
	for rows.Next() {
		r, err := scanRawStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load company statements iterate")
}

func scanRawStatement(rows *sql.Rows) (*model.StatementRow, error) {
	var r model.StatementRow
	var quarter string
	var processed sql.NullInt64
	err := rows.Scan(
		&r.CompanyName, &quarter, &r.Version, &r.NSDType, &r.Frame, &r.Account,
		&r.Description, &r.Value, &r.NSD, &r.Sector, &r.Subsector, &r.Segment,
		&processed,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan raw statement")
	}
	if r.Quarter, err = time.Parse(dateLayout, quarter); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse raw quarter")
	}
	if processed.Valid {
		v := int(processed.Int64)
		r.Processed = &v
	}
	return &r, nil
}

func intOrNull(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// --- normalization ---

func (s *SQLiteStore) ListPendingCompanies(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT company_name FROM pending_companies ORDER BY company_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending companies")
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pending company")
		}
		out = append(out, name)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list pending companies iterate")
}

const normalizedCols = `company_name, quarter, version, nsd_type, frame, account,
	description, value, original_value, nsd, sector, subsector, segment,
	standard_criteria`

// SaveNormalizedAndMark upserts the company's normalized rows and
// flips processed on its raw rows in a single transaction: both happen
// or neither. The processed flip is cross-checked by recounting the
// WHERE clause before and after; a disagreement with the engine's
// rowcount is logged, not fatal.
func (s *SQLiteStore) SaveNormalizedAndMark(ctx context.Context, companyName string, rows []model.NormalizedRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save normalized")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO normalized_statements (`+normalizedCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(company_name, quarter, version, nsd_type, frame, account) DO UPDATE SET
			description=excluded.description,
			value=excluded.value,
			original_value=excluded.original_value,
			nsd=excluded.nsd,
			sector=excluded.sector,
			subsector=excluded.subsector,
			segment=excluded.segment,
			standard_criteria=excluded.standard_criteria`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare normalized upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range rows {
		r := &rows[i]
		_, err := stmt.ExecContext(ctx,
			r.CompanyName, r.Quarter.Format(dateLayout), r.Version, r.NSDType, r.Frame, r.Account,
			r.Description, r.Value, floatOrNull(r.OriginalValue), r.NSD,
			r.Sector, r.Subsector, r.Segment, r.StandardCriteria,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert normalized statement %s", r.Key())
		}
	}

	const pendingWhere = `company_name = ? AND (processed IS NULL OR processed <> version)`

	var before int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM raw_statements WHERE `+pendingWhere, companyName,
	).Scan(&before); err != nil {
		return eris.Wrap(err, "sqlite: count unprocessed before")
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE raw_statements SET processed = version WHERE `+pendingWhere, companyName,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark processed %s", companyName)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: mark processed rows affected")
	}

	var after int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM raw_statements WHERE `+pendingWhere, companyName,
	).Scan(&after); err != nil {
		return eris.Wrap(err, "sqlite: count unprocessed after")
	}

	if delta := int64(before - after); delta != affected {
		zap.L().Warn("sqlite: processed flip rowcount mismatch",
			zap.String("company", companyName),
			zap.Int64("reported", affected),
			zap.Int64("recounted", delta),
		)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save normalized")
}

func (s *SQLiteStore) ListNormalized(ctx context.Context, companyName string) ([]model.NormalizedRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+normalizedCols+` FROM normalized_statements
		WHERE company_name = ?
		ORDER BY quarter, nsd_type, frame, account`,
		companyName,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list normalized")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.NormalizedRow
	for rows.Next() {
		var r model.NormalizedRow
		var quarter string
		var orig sql.NullFloat64
		err := rows.Scan(
			&r.CompanyName, &quarter, &r.Version, &r.NSDType, &r.Frame, &r.Account,
			&r.Description, &r.Value, &orig, &r.NSD,
			&r.Sector, &r.Subsector, &r.Segment, &r.StandardCriteria,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan normalized")
		}
		if r.Quarter, err = time.Parse(dateLayout, quarter); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse normalized quarter")
		}
		if orig.Valid {
			v := orig.Float64
			r.OriginalValue = &v
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list normalized iterate")
}

func floatOrNull(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
