package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/ideaarchitect/internal/model"
)

var sessionRowColumns = []string{
	"token", "user_id", "expires_at", "created_at",
	"id", "email", "name", "avatar", "created_at", "updated_at",
}

func TestPostgresSessionRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	session := &model.Session{Token: "tok", UserID: "user-1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("tok", "user-1", session.ExpiresAt, session.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresSessionRepo(db)
	require.NoError(t, repo.Create(context.Background(), session))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepo_FindByToken_ReturnsSessionWithUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM sessions s\\s+JOIN users u").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("tok", "user-1", now.Add(time.Hour), now, "user-1", "alice@example.com", "Alice", "", now, now))

	repo := NewPostgresSessionRepo(db)
	s, err := repo.FindByToken(context.Background(), "tok")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "user-1", s.UserID)
	assert.Equal(t, model.Identity{ID: "user-1", Email: "alice@example.com", Name: "Alice"}, s.Identity())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 期限切れのセッションもフィルタせずに返す
func TestPostgresSessionRepo_FindByToken_ExpiredRowIsReturned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("old").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("old", "user-1", now.Add(-time.Hour), now.Add(-8*24*time.Hour), "user-1", "a@example.com", "A", "", now, now))

	repo := NewPostgresSessionRepo(db)
	s, err := repo.FindByToken(context.Background(), "old")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.IsExpired(now))
}

func TestPostgresSessionRepo_FindByToken_NotFound_ReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))

	repo := NewPostgresSessionRepo(db)
	s, err := repo.FindByToken(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestPostgresSessionRepo_FindByToken_StoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM sessions").WillReturnError(errors.New("db down"))

	repo := NewPostgresSessionRepo(db)
	s, err := repo.FindByToken(context.Background(), "tok")
	assert.Error(t, err)
	assert.Nil(t, s)
}

// 存在しないトークンの削除はエラーにならない
func TestPostgresSessionRepo_DeleteByToken_Idempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM sessions WHERE token = \\$1").
		WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM sessions WHERE token = \\$1").
		WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresSessionRepo(db)
	require.NoError(t, repo.DeleteByToken(context.Background(), "tok"))
	require.NoError(t, repo.DeleteByToken(context.Background(), "tok"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRepo_DeleteExpired_ReturnsCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec("DELETE FROM sessions WHERE expires_at < \\$1").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	repo := NewPostgresSessionRepo(db)
	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
