package services

import (
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/db"
)

func newChannelService(t *testing.T) (*ChannelService, sqlmock.Sqlmock) {
	t.Helper()
	pg, mockDB, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { pg.Close() })
	return NewChannelService(pg, NewResolver(pg, nil)), mockDB
}

func TestChannelCreate(t *testing.T) {
	service, mockDB := newChannelService(t)

	config := json.RawMessage(`{"host":"smtp.example.com"}`)
	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM channel WHERE external_uuid`).
		WithArgs(testChannelUUID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM available_channel_type`).
		WithArgs("email").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mockDB.ExpectQuery(`INSERT INTO channel \(external_uuid`).
		WithArgs(testChannelUUID, "Ops Mail", "email", []byte(config)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mockDB.ExpectCommit()

	channel, err := service.Create(db.ChannelRequest{
		ID:     strPtr(testChannelUUID),
		Name:   strPtr("Ops Mail"),
		Type:   strPtr("email"),
		Config: config,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), channel.ID)
	assert.Equal(t, "email", channel.Type)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestChannelCreate_UnknownType(t *testing.T) {
	service, mockDB := newChannelService(t)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM channel WHERE external_uuid`).
		WithArgs(testChannelUUID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM available_channel_type`).
		WithArgs("carrier-pigeon").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectRollback()

	_, err := service.Create(db.ChannelRequest{
		ID:   strPtr(testChannelUUID),
		Name: strPtr("Ops Mail"),
		Type: strPtr("carrier-pigeon"),
	})
	var unprocessable *UnprocessableError
	require.ErrorAs(t, err, &unprocessable)
	assert.Contains(t, err.Error(), "channel type")
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestChannelCreate_RejectsNonObjectConfig(t *testing.T) {
	service, mockDB := newChannelService(t)

	_, err := service.Create(db.ChannelRequest{
		ID:     strPtr(testChannelUUID),
		Name:   strPtr("Ops Mail"),
		Type:   strPtr("email"),
		Config: json.RawMessage(`"just a string"`),
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Message, "config")
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestChannelUpsert_NullConfigStoredAsNull(t *testing.T) {
	service, mockDB := newChannelService(t)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id FROM channel WHERE external_uuid").
		WithArgs(testChannelUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mockDB.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM available_channel_type`).
		WithArgs("email").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mockDB.ExpectExec("UPDATE channel").
		WithArgs(7, "Ops Mail", "email", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	created, err := service.Upsert(testChannelUUID, db.ChannelRequest{
		ID:     strPtr(testChannelUUID),
		Name:   strPtr("Ops Mail"),
		Type:   strPtr("email"),
		Config: json.RawMessage("null"),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestChannelDelete_StillReferenced(t *testing.T) {
	service, mockDB := newChannelService(t)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id FROM channel WHERE external_uuid").
		WithArgs(testChannelUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mockDB.ExpectExec("DELETE FROM channel WHERE id").
		WithArgs(7).
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation})
	mockDB.ExpectRollback()

	err := service.Delete(testChannelUUID)
	var unprocessable *UnprocessableError
	require.ErrorAs(t, err, &unprocessable)
	assert.Contains(t, err.Error(), "referenced")
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestChannelGet(t *testing.T) {
	service, mockDB := newChannelService(t)

	mockDB.ExpectQuery("SELECT ch.id, ch.external_uuid, ch.name").
		WithArgs(testChannelUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_uuid", "name", "type", "config"}).
			AddRow(7, testChannelUUID, "Ops Mail", "email", []byte(`{"host":"smtp.example.com"}`)))

	channel, err := service.Get(testChannelUUID)
	require.NoError(t, err)
	assert.Equal(t, "Ops Mail", channel.Name)
	assert.JSONEq(t, `{"host":"smtp.example.com"}`, string(channel.Config))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestChannelGet_NullConfigOmitted(t *testing.T) {
	service, mockDB := newChannelService(t)

	mockDB.ExpectQuery("SELECT ch.id, ch.external_uuid, ch.name").
		WithArgs(testChannelUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_uuid", "name", "type", "config"}).
			AddRow(7, testChannelUUID, "Ops Mail", "email", nil))

	channel, err := service.Get(testChannelUUID)
	require.NoError(t, err)
	assert.Nil(t, channel.Config)

	encoded, err := json.Marshal(channel)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "config")
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestChannelListTypes(t *testing.T) {
	service, mockDB := newChannelService(t)

	mockDB.ExpectQuery("SELECT type, name, version, author, config_attrs").
		WithArgs(500, 0).
		WillReturnRows(sqlmock.NewRows([]string{"type", "name", "version", "author", "config_attrs"}).
			AddRow("email", "Email", "1.0", "RelayDesk", []byte(`[]`)).
			AddRow("webhook", "Webhook", "1.0", "RelayDesk", []byte(`[]`)))

	types, err := service.ListTypes(500, 0)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "email", types[0].Type)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
