package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverID(t *testing.T) {
	pg, mockDB, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	resolver := NewResolver(pg, nil)

	mockDB.ExpectQuery("SELECT id FROM contact WHERE external_uuid").
		WithArgs(testContactUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	id, err := resolver.ID(pg, tableContact, testContactUUID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestResolverID_NotFound(t *testing.T) {
	pg, mockDB, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	resolver := NewResolver(pg, nil)

	mockDB.ExpectQuery("SELECT id FROM contact WHERE external_uuid").
		WithArgs(testContactUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = resolver.ID(pg, tableContact, testContactUUID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestResolverUUID(t *testing.T) {
	pg, mockDB, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	resolver := NewResolver(pg, nil)

	mockDB.ExpectQuery("SELECT external_uuid FROM channel WHERE id").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"external_uuid"}).AddRow(testChannelUUID))

	externalUUID, err := resolver.UUID(pg, tableChannel, 7)
	require.NoError(t, err)
	assert.Equal(t, testChannelUUID, externalUUID)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
