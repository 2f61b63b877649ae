package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepositoryFindByIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, role, organization FROM users WHERE id IN (?, ?)")).
		WithArgs("u-1", "u-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "organization"}).
			AddRow("u-1", "Asha", "asha@example.org", "manager", "JWP"))

	users, err := repo.FindByIDs(context.Background(), []string{"u-1", "u-2"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Asha", users[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDsEmpty(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	users, err := NewUserRepository(db).FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}
