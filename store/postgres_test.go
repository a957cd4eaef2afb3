package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresReadRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM records WHERE path = $1")).
		WithArgs("documents/d1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"title":"Report"}`)))

	raw, err := p.Read(context.Background(), "documents/d1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Report"}`, string(raw))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReadAbsentFallsThroughToCollection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM records WHERE path = $1")).
		WithArgs("documents").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT path, value FROM records WHERE path LIKE $1 || '/%'")).
		WithArgs("documents").
		WillReturnRows(sqlmock.NewRows([]string{"path", "value"}).
			AddRow("documents/d1", []byte(`{"title":"One"}`)).
			AddRow("documents/d2", []byte(`{"title":"Two"}`)))

	raw, err := p.Read(context.Background(), "documents")
	require.NoError(t, err)

	var collection map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &collection))
	assert.Len(t, collection, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReadNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM records WHERE path = $1")).
		WithArgs("documents/missing").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT path, value FROM records WHERE path LIKE $1 || '/%'")).
		WithArgs("documents/missing").
		WillReturnRows(sqlmock.NewRows([]string{"path", "value"}))

	_, err = p.Read(context.Background(), "documents/missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriteUpsertsAndNotifies(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db, nil)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO records .*DO UPDATE SET value = EXCLUDED.value").
		WithArgs("documents/d1", []byte(`{"title":"Report"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_notify($1, $2)")).
		WithArgs(NotifyChannel, "documents/d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = p.Write(context.Background(), "documents/d1", map[string]string{"title": "Report"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMergeUsesJSONBConcat(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db, nil)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO records .*DO UPDATE SET value = records\.value \|\| EXCLUDED\.value`).
		WithArgs("documents/d1", []byte(`{"content":"hello"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_notify($1, $2)")).
		WithArgs(NotifyChannel, "documents/d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = p.Merge(context.Background(), "documents/d1", map[string]any{"content": "hello"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRemoveNotifies(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM records WHERE path = $1")).
		WithArgs("documents/d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_notify($1, $2)")).
		WithArgs(NotifyChannel, "documents/d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = p.Remove(context.Background(), "documents/d1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSubscribeWithoutListener(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db, nil)

	_, err = p.Subscribe("documents/d1", func(json.RawMessage) {})
	assert.Error(t, err)
}
