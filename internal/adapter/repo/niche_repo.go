package repo

import (
	"context"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// NicheRepositorySQL implements domain.NicheRepository over a marker-logged
// SQL executor.
type NicheRepositorySQL struct {
	sql infra.SQLExecutor
}

// NewNicheRepository creates a NicheRepositorySQL.
func NewNicheRepository(sql infra.SQLExecutor) *NicheRepositorySQL {
	return &NicheRepositorySQL{sql: sql}
}

// ListNiches returns all product categories ordered by name.
func (r *NicheRepositorySQL) ListNiches(ctx context.Context) ([]domain.Niche, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListNiches)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var niches []domain.Niche
	for rows.Next() {
		var n domain.Niche
		if err := rows.Scan(&n.ID, &n.Name, &n.Description); err != nil {
			return nil, err
		}
		niches = append(niches, n)
	}
	return niches, rows.Err()
}

// ListKeywords returns every classifier keyword with its weight and niche.
func (r *NicheRepositorySQL) ListKeywords(ctx context.Context) ([]domain.NicheKeyword, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListKeywords)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keywords []domain.NicheKeyword
	for rows.Next() {
		var k domain.NicheKeyword
		if err := rows.Scan(&k.NicheID, &k.NicheName, &k.Keyword, &k.Weight); err != nil {
			return nil, err
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

// LearnKeyword inserts a feedback-derived keyword, ignoring duplicates.
func (r *NicheRepositorySQL) LearnKeyword(ctx context.Context, nicheID int, keyword string, weight float64) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertLearnedKeyword, nicheID, keyword, weight)
	return err
}

var _ domain.NicheRepository = (*NicheRepositorySQL)(nil)
