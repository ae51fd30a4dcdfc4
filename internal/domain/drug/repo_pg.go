package drug

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mal33k-eden/pms-agent-api/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const drugCols = `id, name, generic_name, created_at`

const safetyCols = `id, drug_id, pregnancy_category, pregnancy_text, breastfeeding_text,
	pregnancy_safety, breastfeeding_safety, ai_summary, key_warnings,
	data_source, confidence_score, study_count, fetched_at, expires_at`

const searchCols = `id, search_term, drug_id, found, created_at`

// -- Drugs --

func (r *repoPG) FindByName(ctx context.Context, name string) (*Drug, error) {
	// Exact case-insensitive match on brand or generic name. A brand-name
	// match wins when a term is some drug's brand and another's generic.
	d, err := scanDrug(r.conn(ctx).QueryRow(ctx, `
		SELECT `+drugCols+` FROM drugs
		WHERE LOWER(name) = LOWER($1) OR LOWER(generic_name) = LOWER($1)
		ORDER BY (LOWER(name) = LOWER($1)) DESC, created_at
		LIMIT 1`, name))
	if err != nil {
		return nil, db.WrapError(err)
	}
	return d, nil
}

func (r *repoPG) Upsert(ctx context.Context, name string, genericName *string) (*Drug, error) {
	// The arbiter is the functional unique index on LOWER(name), so case
	// variants collapse to the first-recorded row. DO UPDATE (rather than
	// DO NOTHING) makes RETURNING yield the surviving row either way; the
	// stored casing is never rewritten, and a NULL generic never clobbers
	// a known one.
	d, err := scanDrug(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO drugs (id, name, generic_name) VALUES ($1, $2, $3)
		ON CONFLICT (LOWER(name)) DO UPDATE
			SET generic_name = COALESCE(EXCLUDED.generic_name, drugs.generic_name)
		RETURNING `+drugCols,
		uuid.New(), name, genericName))
	if err != nil {
		return nil, db.WrapError(err)
	}
	return d, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Drug, error) {
	d, err := scanDrug(r.conn(ctx).QueryRow(ctx, `SELECT `+drugCols+` FROM drugs WHERE id = $1`, id))
	if err != nil {
		return nil, db.WrapError(err)
	}
	return d, nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Drug, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM drugs`).Scan(&total); err != nil {
		return nil, 0, db.WrapError(err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+drugCols+` FROM drugs ORDER BY LOWER(name) LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, db.WrapError(err)
	}
	defer rows.Close()

	var drugs []*Drug
	for rows.Next() {
		var d Drug
		if err := rows.Scan(&d.ID, &d.Name, &d.GenericName, &d.CreatedAt); err != nil {
			return nil, 0, db.WrapError(err)
		}
		drugs = append(drugs, &d)
	}
	return drugs, total, rows.Err()
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM drugs WHERE id = $1`, id)
	if err != nil {
		return db.WrapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// -- Safety data --

func (r *repoPG) GetFreshSafety(ctx context.Context, drugID uuid.UUID) (*SafetyData, error) {
	// Freshest non-expired row wins; expired rows are invisible here and
	// only ever surface through SafetyHistory.
	sd, err := scanSafety(r.conn(ctx).QueryRow(ctx, `
		SELECT `+safetyCols+` FROM drug_safety_data
		WHERE drug_id = $1 AND expires_at > NOW()
		ORDER BY fetched_at DESC
		LIMIT 1`, drugID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, db.WrapError(err)
	}
	return sd, nil
}

func (r *repoPG) RecordSafety(ctx context.Context, sd *SafetyData) error {
	sd.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO drug_safety_data (
			id, drug_id, pregnancy_category, pregnancy_text, breastfeeding_text,
			pregnancy_safety, breastfeeding_safety, ai_summary, key_warnings,
			data_source, confidence_score, study_count, fetched_at, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		sd.ID, sd.DrugID, sd.PregnancyCategory, sd.PregnancyText, sd.BreastfeedingText,
		sd.PregnancySafety, sd.BreastfeedingSafety, sd.AISummary, sd.KeyWarnings,
		sd.DataSource, sd.ConfidenceScore, sd.StudyCount, sd.FetchedAt, sd.ExpiresAt,
	)
	return db.WrapError(err)
}

func (r *repoPG) SafetyHistory(ctx context.Context, drugID uuid.UUID, limit, offset int) ([]*SafetyData, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM drug_safety_data WHERE drug_id = $1`, drugID).Scan(&total); err != nil {
		return nil, 0, db.WrapError(err)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+safetyCols+` FROM drug_safety_data
		WHERE drug_id = $1 ORDER BY fetched_at DESC LIMIT $2 OFFSET $3`,
		drugID, limit, offset)
	if err != nil {
		return nil, 0, db.WrapError(err)
	}
	defer rows.Close()
	return collectSafety(rows, total)
}

func (r *repoPG) PurgeExpiredSafety(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM drug_safety_data WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, db.WrapError(err)
	}
	return tag.RowsAffected(), nil
}

// -- Search log --

func (r *repoPG) LogSearch(ctx context.Context, rec *SearchRecord) error {
	rec.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO searches (id, search_term, drug_id, found)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		rec.ID, rec.SearchTerm, rec.DrugID, rec.Found,
	).Scan(&rec.CreatedAt)
	return db.WrapError(err)
}

func (r *repoPG) RecentSearches(ctx context.Context, limit, offset int) ([]*SearchRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM searches`).Scan(&total); err != nil {
		return nil, 0, db.WrapError(err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+searchCols+` FROM searches ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, db.WrapError(err)
	}
	defer rows.Close()

	var recs []*SearchRecord
	for rows.Next() {
		var rec SearchRecord
		if err := rows.Scan(&rec.ID, &rec.SearchTerm, &rec.DrugID, &rec.Found, &rec.CreatedAt); err != nil {
			return nil, 0, db.WrapError(err)
		}
		recs = append(recs, &rec)
	}
	return recs, total, rows.Err()
}

func scanDrug(row pgx.Row) (*Drug, error) {
	var d Drug
	if err := row.Scan(&d.ID, &d.Name, &d.GenericName, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanSafety(row pgx.Row) (*SafetyData, error) {
	var s SafetyData
	err := row.Scan(
		&s.ID, &s.DrugID, &s.PregnancyCategory, &s.PregnancyText, &s.BreastfeedingText,
		&s.PregnancySafety, &s.BreastfeedingSafety, &s.AISummary, &s.KeyWarnings,
		&s.DataSource, &s.ConfidenceScore, &s.StudyCount, &s.FetchedAt, &s.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSafety(rows pgx.Rows, total int) ([]*SafetyData, int, error) {
	var items []*SafetyData
	for rows.Next() {
		var s SafetyData
		err := rows.Scan(
			&s.ID, &s.DrugID, &s.PregnancyCategory, &s.PregnancyText, &s.BreastfeedingText,
			&s.PregnancySafety, &s.BreastfeedingSafety, &s.AISummary, &s.KeyWarnings,
			&s.DataSource, &s.ConfidenceScore, &s.StudyCount, &s.FetchedAt, &s.ExpiresAt,
		)
		if err != nil {
			return nil, 0, db.WrapError(err)
		}
		items = append(items, &s)
	}
	return items, total, rows.Err()
}
