package filters

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"library-api/pkg/apierror"
	"library-api/pkg/config"
	"library-api/pkg/database"
	"library-api/pkg/models"

	"github.com/google/uuid"
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

func TestAuthorNameIsCaseInsensitiveSubstring(t *testing.T) {
	db := setupTestDB(t)
	for _, name := range []string{"John Smith", "SMITHERS", "Jane Doe"} {
		require.NoError(t, db.Create(&models.Author{Name: name}).Error)
	}

	scopes, err := Authors.Scopes(url.Values{"name": {"smith"}})
	require.NoError(t, err)

	var authors []models.Author
	require.NoError(t, db.Scopes(scopes...).Order("name").Find(&authors).Error)
	require.Len(t, authors, 2)
	assert.Equal(t, "John Smith", authors[0].Name)
	assert.Equal(t, "SMITHERS", authors[1].Name)
}

func TestLikeWildcardsAreEscaped(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&models.Author{Name: "100% Pure"}).Error)
	require.NoError(t, db.Create(&models.Author{Name: "1000 Words"}).Error)

	scopes, err := Authors.Scopes(url.Values{"name": {"0%"}})
	require.NoError(t, err)

	var authors []models.Author
	require.NoError(t, db.Scopes(scopes...).Find(&authors).Error)
	require.Len(t, authors, 1)
	assert.Equal(t, "100% Pure", authors[0].Name)
}

func TestBookFilters(t *testing.T) {
	db := setupTestDB(t)
	fiction := models.Category{Name: "Fiction"}
	science := models.Category{Name: "Science"}
	require.NoError(t, db.Create(&fiction).Error)
	require.NoError(t, db.Create(&science).Error)
	orwell := models.Author{Name: "George Orwell"}
	sagan := models.Author{Name: "Carl Sagan"}
	require.NoError(t, db.Create(&orwell).Error)
	require.NoError(t, db.Create(&sagan).Error)

	books := []models.Book{
		{Title: "Nineteen Eighty-Four", ISBN: "9780451524935", CategoryID: fiction.ID, TotalCopies: 2, AvailableCopies: 2, Authors: []models.Author{orwell}},
		{Title: "Animal Farm", ISBN: "9780451526342", CategoryID: fiction.ID, TotalCopies: 1, AvailableCopies: 1, Authors: []models.Author{orwell}},
		{Title: "Cosmos", ISBN: "9780345539434", CategoryID: science.ID, TotalCopies: 1, AvailableCopies: 1, Authors: []models.Author{sagan}},
	}
	for i := range books {
		require.NoError(t, db.Omit("Authors.*").Create(&books[i]).Error)
	}

	cases := []struct {
		name   string
		query  url.Values
		titles []string
	}{
		{"title", url.Values{"title": {"FARM"}}, []string{"Animal Farm"}},
		{"isbn exact", url.Values{"isbn": {"9780345539434"}}, []string{"Cosmos"}},
		{"isbn is not substring", url.Values{"isbn": {"978034"}}, nil},
		{"category", url.Values{"category_id": {"1"}}, []string{"Animal Farm", "Nineteen Eighty-Four"}},
		{"author", url.Values{"author_id": {sagan.ID.String()}}, []string{"Cosmos"}},
		{"combined", url.Values{"author_id": {orwell.ID.String()}, "title": {"nine"}}, []string{"Nineteen Eighty-Four"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scopes, err := Books.Scopes(tc.query)
			require.NoError(t, err)
			var got []models.Book
			require.NoError(t, db.Model(&models.Book{}).Scopes(scopes...).Order("title").Find(&got).Error)
			var titles []string
			for _, b := range got {
				titles = append(titles, b.Title)
			}
			assert.Equal(t, tc.titles, titles)
		})
	}
}

func TestBorrowRecordDueDateRange(t *testing.T) {
	db := setupTestDB(t)
	category := models.Category{Name: "Fiction"}
	require.NoError(t, db.Create(&category).Error)
	book := models.Book{Title: "Dune", ISBN: "9780441172719", CategoryID: category.ID, TotalCopies: 3, AvailableCopies: 3}
	require.NoError(t, db.Create(&book).Error)
	user := models.User{Email: "reader@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(&user).Error)

	day := func(s string) time.Time {
		d, err := time.Parse(DateLayout, s)
		require.NoError(t, err)
		return d
	}
	for _, due := range []string{"2024-01-01", "2024-01-10", "2024-01-20"} {
		rec := models.BorrowRecord{BookID: book.ID, UserID: user.ID, BorrowDate: day("2023-12-25"), DueDate: day(due)}
		require.NoError(t, db.Create(&rec).Error)
	}

	scopes, err := BorrowRecords.Scopes(url.Values{
		"due_date_after":  {"2024-01-10"},
		"due_date_before": {"2024-01-20"},
		"status":          {"Active"},
		"book_id":         {book.ID.String()},
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.BorrowRecord{}).Scopes(scopes...).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestMalformedValuesAreRejected(t *testing.T) {
	_, err := BorrowRecords.Scopes(url.Values{
		"user_id":        {"not-a-uuid"},
		"due_date_after": {"yesterday"},
	})
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Fields, "user_id")
	assert.Contains(t, apiErr.Fields, "due_date_after")
}

func TestEmptyParamsProduceNoScopes(t *testing.T) {
	scopes, err := Books.Scopes(url.Values{"title": {""}, "unknown": {uuid.NewString()}})
	require.NoError(t, err)
	assert.Empty(t, scopes)
}
