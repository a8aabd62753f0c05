package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/db"
)

func newContactgroupService(t *testing.T) (*ContactgroupService, sqlmock.Sqlmock) {
	t.Helper()
	pg, mockDB, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { pg.Close() })
	return NewContactgroupService(pg, NewResolver(pg, nil)), mockDB
}

func TestContactgroupCreate(t *testing.T) {
	service, mockDB := newContactgroupService(t)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM contactgroup WHERE external_uuid`).
		WithArgs(testGroupUUID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectQuery(`INSERT INTO contactgroup \(external_uuid`).
		WithArgs(testGroupUUID, "on-call").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mockDB.ExpectQuery("SELECT id FROM contact WHERE external_uuid").
		WithArgs(testContactUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mockDB.ExpectExec("INSERT INTO contactgroup_member").
		WithArgs(9, 42).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mockDB.ExpectCommit()

	group, err := service.Create(db.ContactgroupRequest{
		ID:    strPtr(testGroupUUID),
		Name:  strPtr("on-call"),
		Users: []string{testContactUUID},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), group.ID)
	assert.Equal(t, []string{testContactUUID}, group.Users)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestContactgroupCreate_UnknownMember(t *testing.T) {
	service, mockDB := newContactgroupService(t)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM contactgroup WHERE external_uuid`).
		WithArgs(testGroupUUID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectQuery(`INSERT INTO contactgroup \(external_uuid`).
		WithArgs(testGroupUUID, "on-call").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mockDB.ExpectQuery("SELECT id FROM contact WHERE external_uuid").
		WithArgs(testContactUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mockDB.ExpectRollback()

	_, err := service.Create(db.ContactgroupRequest{
		ID:    strPtr(testGroupUUID),
		Name:  strPtr("on-call"),
		Users: []string{testContactUUID},
	})
	var unprocessable *UnprocessableError
	require.ErrorAs(t, err, &unprocessable)
	assert.Contains(t, err.Error(), "does not exist")
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestContactgroupCreate_InvalidMemberUUID(t *testing.T) {
	service, mockDB := newContactgroupService(t)

	_, err := service.Create(db.ContactgroupRequest{
		ID:    strPtr(testGroupUUID),
		Name:  strPtr("on-call"),
		Users: []string{"not-a-uuid"},
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Message, "users")
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestContactgroupReplace_MovesIdentifier(t *testing.T) {
	service, mockDB := newContactgroupService(t)

	target := "3d1a4b4e-6a0e-4f2c-9a35-6a1d9b20c401"
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id FROM contactgroup WHERE external_uuid").
		WithArgs(testGroupUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mockDB.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM contactgroup WHERE external_uuid`).
		WithArgs(target).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectExec("UPDATE contactgroup SET external_uuid").
		WithArgs(9, target).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE contactgroup SET name").
		WithArgs(9, "on-call").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("DELETE FROM contactgroup_member WHERE contactgroup_id").
		WithArgs(9).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectCommit()

	moved, err := service.Replace(testGroupUUID, db.ContactgroupRequest{
		ID:   strPtr(target),
		Name: strPtr("on-call"),
	})
	require.NoError(t, err)
	assert.True(t, moved)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestContactgroupReplace_TargetTaken(t *testing.T) {
	service, mockDB := newContactgroupService(t)

	target := "3d1a4b4e-6a0e-4f2c-9a35-6a1d9b20c401"
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id FROM contactgroup WHERE external_uuid").
		WithArgs(testGroupUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mockDB.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM contactgroup WHERE external_uuid`).
		WithArgs(target).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mockDB.ExpectRollback()

	_, err := service.Replace(testGroupUUID, db.ContactgroupRequest{
		ID:   strPtr(target),
		Name: strPtr("on-call"),
	})
	var unprocessable *UnprocessableError
	require.ErrorAs(t, err, &unprocessable)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestContactgroupReplace_ContainerMissing(t *testing.T) {
	service, mockDB := newContactgroupService(t)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id FROM contactgroup WHERE external_uuid").
		WithArgs(testGroupUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mockDB.ExpectRollback()

	_, err := service.Replace(testGroupUUID, db.ContactgroupRequest{
		ID:   strPtr(testGroupUUID),
		Name: strPtr("on-call"),
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestContactgroupDelete(t *testing.T) {
	service, mockDB := newContactgroupService(t)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT id FROM contactgroup WHERE external_uuid").
		WithArgs(testGroupUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mockDB.ExpectExec("DELETE FROM contactgroup_member WHERE contactgroup_id").
		WithArgs(9).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mockDB.ExpectExec("DELETE FROM contactgroup WHERE id").
		WithArgs(9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	require.NoError(t, service.Delete(testGroupUUID))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestContactgroupGet(t *testing.T) {
	service, mockDB := newContactgroupService(t)

	mockDB.ExpectQuery("SELECT g.id, g.external_uuid, g.name").
		WithArgs(testGroupUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_uuid", "name"}).
			AddRow(9, testGroupUUID, "on-call"))
	mockDB.ExpectQuery("SELECT c.external_uuid").
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"external_uuid"}))

	group, err := service.Get(testGroupUUID)
	require.NoError(t, err)
	assert.Equal(t, "on-call", group.Name)
	assert.Equal(t, []string{}, group.Users, "a group without members must serialize as an empty list")
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
