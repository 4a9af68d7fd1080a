// Package input reads work rows from CSV files.
package input

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
)

// IDColumn is the required key column.
const IDColumn = "id"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVSource streams rows from a header-bearing CSV file.
type CSVSource struct {
	path    string
	headers []string
	log     *slog.Logger
}

// NewCSVSource creates a source for path. The file must exist.
func NewCSVSource(path string) (*CSVSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: input file: %w", domain.ErrIO, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: input path is a directory: %s", domain.ErrIO, path)
	}
	return &CSVSource{
		path: path,
		log:  slog.Default().With("component", "input", "path", path),
	}, nil
}

// Headers returns the header of the most recent read.
func (s *CSVSource) Headers() []string {
	return slices.Clone(s.headers)
}

// Rows re-opens the file and yields its rows lazily.
// A nil filter yields every row; otherwise only rows whose id is in filter, in file order.
// Schema and read errors are yielded once and end the sequence.
func (s *CSVSource) Rows(filter []string) iter.Seq2[domain.Row, error] {
	var allow map[string]struct{}
	if filter != nil {
		allow = make(map[string]struct{}, len(filter))
		for _, id := range filter {
			allow[id] = struct{}{}
		}
	}

	return func(yield func(domain.Row, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(domain.Row{}, fmt.Errorf("%w: open input: %w", domain.ErrIO, err))
			return
		}
		defer f.Close()

		br := bufio.NewReader(f)
		if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
			_, _ = br.Discard(len(utf8BOM))
		}

		r := csv.NewReader(br)
		r.FieldsPerRecord = -1

		header, err := r.Read()
		if errors.Is(err, io.EOF) {
			yield(domain.Row{}, fmt.Errorf("%w: csv file has no headers", domain.ErrSchema))
			return
		}
		if err != nil {
			yield(domain.Row{}, fmt.Errorf("%w: read header: %w", domain.ErrSchema, err))
			return
		}
		s.headers = slices.Clone(header)

		idIdx := slices.Index(header, IDColumn)
		if idIdx < 0 {
			yield(domain.Row{}, fmt.Errorf("%w: csv file must have an '%s' column", domain.ErrSchema, IDColumn))
			return
		}

		for {
			record, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(domain.Row{}, fmt.Errorf("%w: read row: %w", domain.ErrIO, err))
				return
			}

			id := ""
			if idIdx < len(record) {
				id = strings.TrimSpace(record[idIdx])
			}
			if id == "" {
				line, _ := r.FieldPos(0)
				s.log.Warn("Skipping row with empty ID", "line", line)
				continue
			}
			if allow != nil {
				if _, ok := allow[id]; !ok {
					continue
				}
			}

			inputs := make(domain.Inputs, 0, len(header)-1)
			for i, name := range header {
				if i == idIdx {
					continue
				}
				value := ""
				if i < len(record) {
					value = record[i]
				}
				inputs = append(inputs, domain.Field{Name: name, Value: value})
			}

			if !yield(domain.Row{ID: id, Inputs: inputs}, nil) {
				return
			}
		}
	}
}

// ReadAll collects every row of a filtered read.
func (s *CSVSource) ReadAll(filter []string) ([]domain.Row, error) {
	var rows []domain.Row
	for row, err := range s.Rows(filter) {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
