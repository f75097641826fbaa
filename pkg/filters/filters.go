// Package filters maps query parameters onto gorm scopes.
package filters

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"library-api/pkg/apierror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Scope = func(*gorm.DB) *gorm.DB

type Lookup int

const (
	IContains Lookup = iota
	Exact
	UUID
	Uint
	// DateRange reads <param>_after and <param>_before, both inclusive.
	DateRange
)

const DateLayout = "2006-01-02"

// Field binds one query parameter to a column. Build, when set, replaces the
// default predicate and receives the already parsed value.
type Field struct {
	Param  string
	Column string
	Lookup Lookup
	Build  func(value interface{}) Scope
}

type FilterSet []Field

// Scopes parses q and returns one scope per supplied parameter. Empty
// parameters are ignored; malformed ones produce a field-keyed 400.
func (fs FilterSet) Scopes(q url.Values) ([]Scope, error) {
	var scopes []Scope
	errs := apierror.Fields{}

	for _, f := range fs {
		if f.Lookup == DateRange {
			s, err := f.dateRange(q)
			if err != nil {
				errs.Add(err.param, err.msg)
				continue
			}
			scopes = append(scopes, s...)
			continue
		}

		raw := strings.TrimSpace(q.Get(f.Param))
		if raw == "" {
			continue
		}
		value, msg := f.parse(raw)
		if msg != "" {
			errs.Add(f.Param, msg)
			continue
		}
		if f.Build != nil {
			scopes = append(scopes, f.Build(value))
			continue
		}
		scopes = append(scopes, f.predicate(value))
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return scopes, nil
}

func (f Field) parse(raw string) (interface{}, string) {
	switch f.Lookup {
	case UUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, "Enter a valid UUID."
		}
		return id, ""
	case Uint:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, "Enter a whole number."
		}
		return uint(n), ""
	}
	return raw, ""
}

func (f Field) predicate(value interface{}) Scope {
	switch f.Lookup {
	case IContains:
		return IContainsScope(f.Column, value.(string))
	default:
		return func(db *gorm.DB) *gorm.DB {
			return db.Where(f.Column+" = ?", value)
		}
	}
}

type rangeError struct {
	param string
	msg   string
}

func (f Field) dateRange(q url.Values) ([]Scope, *rangeError) {
	var scopes []Scope
	bounds := []struct {
		suffix string
		op     string
	}{{"_after", ">="}, {"_before", "<="}}

	for _, b := range bounds {
		param := f.Param + b.suffix
		raw := strings.TrimSpace(q.Get(param))
		if raw == "" {
			continue
		}
		day, err := time.Parse(DateLayout, raw)
		if err != nil {
			return nil, &rangeError{param: param, msg: "Enter a valid date."}
		}
		column, op, day := f.Column, b.op, day.UTC()
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Where(fmt.Sprintf("%s %s ?", column, op), day)
		})
	}
	return scopes, nil
}

// IContainsScope matches a case-insensitive substring on any engine.
func IContainsScope(column, value string) Scope {
	pattern := "%" + escapeLike(strings.ToLower(value)) + "%"
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("LOWER("+column+") LIKE ? ESCAPE '\\'", pattern)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
