package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// clinicDB is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type clinicDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores clinics and settings in the relational database.
type PostgresRepository struct {
	db clinicDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("clinic: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db clinicDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateClinicRequest) (*Clinic, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO clinics (id, name, location_label, open_time, close_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		req.Name,
		req.LocationLabel,
		req.OpenTime,
		req.CloseTime,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("clinic: insert failed: %w", err)
	}

	return &Clinic{
		ID:            id.String(),
		Name:          req.Name,
		LocationLabel: req.LocationLabel,
		OpenTime:      req.OpenTime,
		CloseTime:     req.CloseTime,
		CreatedAt:     createdAt,
	}, nil
}

// GetByID fetches a clinic.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Clinic, error) {
	query := `
		SELECT id, name, location_label, open_time, close_time, created_at
		FROM clinics
		WHERE id = $1
	`
	var c Clinic
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.LocationLabel,
		&c.OpenTime,
		&c.CloseTime,
		&c.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, fmt.Errorf("clinic: select failed: %w", err)
	}
	return &c, nil
}

// List returns all clinics ordered by name.
func (r *PostgresRepository) List(ctx context.Context) ([]Clinic, error) {
	query := `
		SELECT id, name, location_label, open_time, close_time, created_at
		FROM clinics
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("clinic: list failed: %w", err)
	}
	defer rows.Close()

	var out []Clinic
	for rows.Next() {
		var c Clinic
		if err := rows.Scan(&c.ID, &c.Name, &c.LocationLabel, &c.OpenTime, &c.CloseTime, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("clinic: scan failed: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update replaces the mutable clinic fields.
func (r *PostgresRepository) Update(ctx context.Context, c *Clinic) error {
	query := `
		UPDATE clinics
		SET name = $2, location_label = $3, open_time = $4, close_time = $5
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, c.ID, c.Name, c.LocationLabel, c.OpenTime, c.CloseTime)
	if err != nil {
		return fmt.Errorf("clinic: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClinicNotFound
	}
	return nil
}

// GetSettings returns the singleton settings row, defaulting when absent.
func (r *PostgresRepository) GetSettings(ctx context.Context) (*Settings, error) {
	query := `
		SELECT hospital_lat, hospital_lon, geofence_radius_km, updated_at
		FROM settings
		WHERE id = 1
	`
	var s Settings
	if err := r.db.QueryRow(ctx, query).Scan(
		&s.HospitalLat,
		&s.HospitalLon,
		&s.GeofenceRadiusKm,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &Settings{GeofenceRadiusKm: 0.5}, nil
		}
		return nil, fmt.Errorf("clinic: select settings failed: %w", err)
	}
	return &s, nil
}

// UpdateSettings upserts the singleton settings row.
func (r *PostgresRepository) UpdateSettings(ctx context.Context, s *Settings) error {
	query := `
		INSERT INTO settings (id, hospital_lat, hospital_lon, geofence_radius_km, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET hospital_lat = $1, hospital_lon = $2, geofence_radius_km = $3, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, s.HospitalLat, s.HospitalLon, s.GeofenceRadiusKm); err != nil {
		return fmt.Errorf("clinic: update settings failed: %w", err)
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
var _ Repository = (*InMemoryRepository)(nil)
