// Package csvinput reads participant uploads from CSV with a Name, profile
// and optional mail column.
package csvinput

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/okian/pointsledger/internal/domain/model"
)

// Header names.
const (
	ColumnName    = "Name"
	ColumnProfile = "profile"
	ColumnMail    = "mail"
)

type columns struct {
	name, profile, mail int
}

func readHeader(r *csv.Reader) (columns, error) {
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return columns{}, fmt.Errorf("%w: %s, %s", ErrMissingColumns, ColumnName, ColumnProfile)
	}
	if err != nil {
		return columns{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	c := columns{name: -1, profile: -1, mail: -1}
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case ColumnName:
			c.name = i
		case ColumnProfile:
			c.profile = i
		case ColumnMail:
			c.mail = i
		}
	}

	var missing []string
	if c.name < 0 {
		missing = append(missing, ColumnName)
	}
	if c.profile < 0 {
		missing = append(missing, ColumnProfile)
	}
	if len(missing) > 0 {
		return columns{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return c, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// Parse validates the upload and returns one Descriptor per data row. Rows
// with an empty Name make the whole file invalid; their 1-based line numbers,
// header included, are listed in the error.
func Parse(r io.Reader) ([]model.Descriptor, error) {
	cr := newReader(r)
	c, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	var (
		out     []model.Descriptor
		missing []string
	)
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if isBlank(rec) {
			continue
		}
		d := model.Descriptor{
			Name:       field(rec, c.name),
			ProfileRef: field(rec, c.profile),
			Email:      field(rec, c.mail),
		}
		if d.Name == "" {
			missing = append(missing, strconv.Itoa(row))
			continue
		}
		out = append(out, d)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w at rows: %s", ErrMissingNames, strings.Join(missing, ", "))
	}
	return out, nil
}

// Validate checks the upload without keeping the rows.
func Validate(r io.Reader) error {
	_, err := Parse(r)
	return err
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
