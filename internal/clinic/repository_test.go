package clinic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCreateAndGet(t *testing.T) {
	repo := NewInMemoryRepository()

	c, err := repo.Create(context.Background(), &CreateClinicRequest{
		Name:     "Dermatology",
		OpenTime: "08:00", CloseTime: "16:00",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.CreatedAt.IsZero())

	got, err := repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dermatology", got.Name)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrClinicNotFound))
}

func TestInMemoryCreateValidates(t *testing.T) {
	repo := NewInMemoryRepository()

	_, err := repo.Create(context.Background(), &CreateClinicRequest{Name: "  "})
	assert.True(t, errors.Is(err, ErrInvalidName))

	_, err = repo.Create(context.Background(), &CreateClinicRequest{Name: "X", OpenTime: "8am"})
	assert.True(t, errors.Is(err, ErrInvalidHours))
}

func TestInMemoryListSortedByName(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.Seed(Clinic{ID: "2", Name: "Orthopedics"})
	repo.Seed(Clinic{ID: "1", Name: "Dermatology"})

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Dermatology", list[0].Name)
	assert.Equal(t, "Orthopedics", list[1].Name)
}

func TestInMemoryUpdate(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.Seed(Clinic{ID: "1", Name: "Dermatology"})

	err := repo.Update(context.Background(), &Clinic{ID: "1", Name: "Derm & Skin"})
	require.NoError(t, err)

	got, err := repo.GetByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Derm & Skin", got.Name)

	err = repo.Update(context.Background(), &Clinic{ID: "missing"})
	assert.True(t, errors.Is(err, ErrClinicNotFound))
}

func TestInMemorySettingsRoundTrip(t *testing.T) {
	repo := NewInMemoryRepository()

	s, err := repo.GetSettings(context.Background())
	require.NoError(t, err)
	assert.False(t, s.HospitalLocationSet())
	assert.Equal(t, 0.5, s.GeofenceRadiusKm)

	lat, lon := 31.95, 35.91
	err = repo.UpdateSettings(context.Background(), &Settings{
		HospitalLat: &lat, HospitalLon: &lon, GeofenceRadiusKm: 1.0,
	})
	require.NoError(t, err)

	s, err = repo.GetSettings(context.Background())
	require.NoError(t, err)
	assert.True(t, s.HospitalLocationSet())
	assert.Equal(t, 1.0, s.GeofenceRadiusKm)
	assert.Equal(t, 31.95, *s.HospitalLat)
}

func TestCopyOnReadIsolation(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.Seed(Clinic{ID: "1", Name: "Dermatology"})

	got, err := repo.GetByID(context.Background(), "1")
	require.NoError(t, err)
	got.Name = "Mutated"

	fresh, err := repo.GetByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Dermatology", fresh.Name)
}
