package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ocrs/registration-api/internal/models"
)

// TermRepository handles read access to academic terms.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository constructs the repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// List returns all terms, newest first.
func (r *TermRepository) List(ctx context.Context) ([]models.Term, error) {
	const query = `SELECT id, name, year, start_date, end_date, is_active, created_at, updated_at
        FROM terms ORDER BY year DESC, start_date DESC`
	var terms []models.Term
	if err := r.db.SelectContext(ctx, &terms, query); err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	return terms, nil
}

// FindByID returns a term by its ID.
func (r *TermRepository) FindByID(ctx context.Context, id string) (*models.Term, error) {
	const query = `SELECT id, name, year, start_date, end_date, is_active, created_at, updated_at
        FROM terms WHERE id = $1`
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		return nil, err
	}
	return &term, nil
}
