package importer

import (
	"context"
	"strings"
	"testing"

	"library-api/pkg/config"
	"library-api/pkg/database"
	"library-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Engine: config.EngineSQLite, SQLitePath: ":memory:"}, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

const sample = `title,isbn,category,authors,total_copies
1984,9780451524935,Dystopia,George Orwell,3
Animal Farm,9780451526342,Dystopia,George Orwell,2
Cosmos,9780345539434,Science,Carl Sagan; Ann Druyan,1
Broken,12345,Science,Nobody,1
Negative,9780306406157,Science,Nobody,-1
`

func TestImportBooks(t *testing.T) {
	db := setupTestDB(t)
	res, err := New(db).ImportBooks(context.Background(), strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 0, res.Skipped)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 5, res.Errors[0].Line)
	assert.Equal(t, 6, res.Errors[1].Line)

	var categories, authors int64
	require.NoError(t, db.Model(&models.Category{}).Count(&categories).Error)
	require.NoError(t, db.Model(&models.Author{}).Count(&authors).Error)
	assert.Equal(t, int64(2), categories)
	assert.Equal(t, int64(3), authors)

	var cosmos models.Book
	require.NoError(t, db.Preload("Authors").Where("isbn = ?", "9780345539434").First(&cosmos).Error)
	assert.Len(t, cosmos.Authors, 2)
	assert.Equal(t, 1, cosmos.AvailableCopies)
}

func TestImportSkipsKnownISBN(t *testing.T) {
	db := setupTestDB(t)
	im := New(db)
	_, err := im.ImportBooks(context.Background(), strings.NewReader(sample))
	require.NoError(t, err)

	res, err := im.ImportBooks(context.Background(), strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 3, res.Skipped)
}

func TestImportRejectsUnknownHeader(t *testing.T) {
	db := setupTestDB(t)
	_, err := New(db).ImportBooks(context.Background(), strings.NewReader("name,isbn\nx,y\n"))
	assert.ErrorIs(t, err, ErrBadHeader)
}
