package catalog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/good-deed-map/backend/internal/models"
)

// Repository handles category, city and region reference data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListCategories returns all activity categories.
func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, COALESCE(description,''), COALESCE(icon,''), COALESCE(color,'') FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Category
	for rows.Next() {
		var cat models.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Description, &cat.Icon, &cat.Color); err != nil {
			return nil, err
		}
		list = append(list, cat)
	}
	return list, rows.Err()
}

// ListCities returns all cities with their region names.
func (r *Repository) ListCities(ctx context.Context) ([]models.City, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.name, c.region_id, COALESCE(rg.name,'')
		 FROM cities c LEFT JOIN regions rg ON rg.id = c.region_id
		 ORDER BY c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.City
	for rows.Next() {
		var city models.City
		if err := rows.Scan(&city.ID, &city.Name, &city.RegionID, &city.Region); err != nil {
			return nil, err
		}
		list = append(list, city)
	}
	return list, rows.Err()
}
