// Package importer loads books from CSV files.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"library-api/pkg/models"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Columns is the expected header. authors holds ';'-separated names.
var Columns = []string{"title", "isbn", "category", "authors", "total_copies"}

var ErrBadHeader = errors.New("unexpected csv header")

type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

type Result struct {
	Imported int
	Skipped  int
	Errors   []RowError
}

type Importer struct {
	db       *gorm.DB
	validate *validator.Validate
}

func New(db *gorm.DB) *Importer {
	return &Importer{db: db, validate: validator.New()}
}

// ImportBooks reads rows from r and stores one book per row. Categories and
// authors are matched by name and created when missing. Rows whose ISBN is
// already stored are skipped; bad rows are reported and do not stop the run.
func (im *Importer) ImportBooks(ctx context.Context, r io.Reader) (Result, error) {
	var res Result
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	if !sameHeader(header) {
		return res, fmt.Errorf("%w: got %v, want %v", ErrBadHeader, header, Columns)
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				res.Errors = append(res.Errors, RowError{Line: parseErr.Line, Err: parseErr.Err})
				continue
			}
			return res, err
		}
		line, _ := reader.FieldPos(0)

		row, err := im.parse(record)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, Err: err})
			continue
		}
		created, err := im.store(ctx, row)
		switch {
		case err != nil:
			res.Errors = append(res.Errors, RowError{Line: line, Err: err})
		case created:
			res.Imported++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

type bookRow struct {
	Title    string   `validate:"required,max=200"`
	ISBN     string   `validate:"required,max=13,isbn"`
	Category string   `validate:"required,max=100"`
	Authors  []string `validate:"dive,required,max=200"`
	Copies   int      `validate:"gte=0"`
}

func (im *Importer) parse(record []string) (*bookRow, error) {
	if len(record) != len(Columns) {
		return nil, fmt.Errorf("want %d fields, got %d", len(Columns), len(record))
	}
	copies, err := strconv.Atoi(strings.TrimSpace(record[4]))
	if err != nil {
		return nil, fmt.Errorf("total_copies: %w", err)
	}
	row := &bookRow{
		Title:    strings.TrimSpace(record[0]),
		ISBN:     strings.TrimSpace(record[1]),
		Category: strings.TrimSpace(record[2]),
		Copies:   copies,
	}
	for _, name := range strings.Split(record[3], ";") {
		if name = strings.TrimSpace(name); name != "" {
			row.Authors = append(row.Authors, name)
		}
	}
	if err := im.validate.Struct(row); err != nil {
		return nil, err
	}
	return row, nil
}

func (im *Importer) store(ctx context.Context, row *bookRow) (bool, error) {
	created := false
	err := im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Book{}).Where("isbn = ?", row.ISBN).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		category := models.Category{Name: row.Category}
		if err := tx.Where("name = ?", row.Category).FirstOrCreate(&category).Error; err != nil {
			return fmt.Errorf("category %q: %w", row.Category, err)
		}
		authors := make([]models.Author, 0, len(row.Authors))
		for _, name := range row.Authors {
			author := models.Author{Name: name}
			if err := tx.Where("name = ?", name).FirstOrCreate(&author).Error; err != nil {
				return fmt.Errorf("author %q: %w", name, err)
			}
			authors = append(authors, author)
		}

		book := models.Book{
			Title:           row.Title,
			ISBN:            row.ISBN,
			CategoryID:      category.ID,
			TotalCopies:     row.Copies,
			AvailableCopies: row.Copies,
			Authors:         authors,
		}
		if err := tx.Omit("Authors.*").Create(&book).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func sameHeader(header []string) bool {
	if len(header) != len(Columns) {
		return false
	}
	for i, col := range Columns {
		if strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))) != col {
			return false
		}
	}
	return true
}
