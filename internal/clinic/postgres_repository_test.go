package clinic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepositoryWithDB(mock), mock
}

func TestPostgresCreateClinic(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO clinics").
		WithArgs(pgxmock.AnyArg(), "Dermatology", "Floor 2", "08:00", "16:00").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	c, err := repo.Create(context.Background(), &CreateClinicRequest{
		Name:          "Dermatology",
		LocationLabel: "Floor 2",
		OpenTime:      "08:00",
		CloseTime:     "16:00",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Dermatology", c.Name)
	assert.Equal(t, now, c.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateClinicRejectsBadHours(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.Create(context.Background(), &CreateClinicRequest{
		Name:     "Dermatology",
		OpenTime: "8am",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidHours))
}

func TestPostgresGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT id, name, location_label").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrClinicNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetSettingsDefaultsWhenAbsent(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT hospital_lat, hospital_lon").
		WillReturnError(pgx.ErrNoRows)

	s, err := repo.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s.HospitalLat)
	assert.Equal(t, 0.5, s.GeofenceRadiusKm)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateSettingsUpserts(t *testing.T) {
	repo, mock := newMockRepo(t)
	lat, lon := 31.95, 35.91

	mock.ExpectExec("INSERT INTO settings").
		WithArgs(&lat, &lon, 0.75).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.UpdateSettings(context.Background(), &Settings{
		HospitalLat:      &lat,
		HospitalLon:      &lon,
		GeofenceRadiusKm: 0.75,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateClinicMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE clinics").
		WithArgs("missing", "X", "", "08:00", "16:00").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), &Clinic{
		ID: "missing", Name: "X", OpenTime: "08:00", CloseTime: "16:00",
	})
	assert.True(t, errors.Is(err, ErrClinicNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}
