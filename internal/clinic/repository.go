package clinic

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for clinic and settings storage
type Repository interface {
	Create(ctx context.Context, req *CreateClinicRequest) (*Clinic, error)
	GetByID(ctx context.Context, id string) (*Clinic, error)
	List(ctx context.Context) ([]Clinic, error)
	Update(ctx context.Context, c *Clinic) error
	GetSettings(ctx context.Context) (*Settings, error)
	UpdateSettings(ctx context.Context, s *Settings) error
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	clinics  map[string]*Clinic
	settings Settings
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		clinics:  make(map[string]*Clinic),
		settings: Settings{GeofenceRadiusKm: 0.5},
	}
}

// Seed inserts a clinic with a fixed id, for tests and in-memory bootstrap.
func (r *InMemoryRepository) Seed(c Clinic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.clinics[c.ID] = &c
}

// SeedSettings replaces the stored settings.
func (r *InMemoryRepository) SeedSettings(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = s
}

// Create creates a new clinic in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateClinicRequest) (*Clinic, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c := &Clinic{
		ID:            uuid.New().String(),
		Name:          req.Name,
		LocationLabel: req.LocationLabel,
		OpenTime:      req.OpenTime,
		CloseTime:     req.CloseTime,
		CreatedAt:     time.Now().UTC(),
	}

	r.mu.Lock()
	r.clinics[c.ID] = c
	r.mu.Unlock()

	return c, nil
}

// GetByID retrieves a clinic by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	copied := *c
	return &copied, nil
}

// List returns all clinics ordered by name.
func (r *InMemoryRepository) List(ctx context.Context) ([]Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Clinic, 0, len(r.clinics))
	for _, c := range r.clinics {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Update replaces a stored clinic.
func (r *InMemoryRepository) Update(ctx context.Context, c *Clinic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clinics[c.ID]; !ok {
		return ErrClinicNotFound
	}
	copied := *c
	r.clinics[c.ID] = &copied
	return nil
}

// GetSettings returns the site settings.
func (r *InMemoryRepository) GetSettings(ctx context.Context) (*Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	copied := r.settings
	return &copied, nil
}

// UpdateSettings replaces the site settings.
func (r *InMemoryRepository) UpdateSettings(ctx context.Context, s *Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = *s
	r.settings.UpdatedAt = time.Now().UTC()
	return nil
}
