package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// FromCSV reads a CSV document with a header row. Column kinds are inferred
// from the non-empty cells: int, then float, then bool, then time, falling
// back to string. Empty cells become missing values.
func FromCSV(name string, r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoColumns
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	raw := make([][]string, len(header))
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv record: %w", err)
		}
		for i := range header {
			raw[i] = append(raw[i], rec[i])
		}
	}

	cols := make([]Column, len(header))
	for i, h := range header {
		kind := inferKind(raw[i])
		vals := make([]any, len(raw[i]))
		for j, cell := range raw[i] {
			vals[j] = parseCell(kind, cell)
		}
		cols[i] = Column{Name: strings.TrimSpace(h), Kind: kind, Values: vals}
	}
	return New(name, cols...)
}

func inferKind(cells []string) Kind {
	candidates := []Kind{KindInt, KindFloat, KindBool, KindTime}
	for _, k := range candidates {
		matched, seen := true, false
		for _, c := range cells {
			if c == "" {
				continue
			}
			seen = true
			if parseCell(k, c) == nil {
				matched = false
				break
			}
		}
		if matched && seen {
			return k
		}
	}
	return KindString
}

// parseCell returns nil when the cell is empty or does not parse as kind.
func parseCell(kind Kind, cell string) any {
	if cell == "" {
		return nil
	}
	switch kind {
	case KindInt:
		if v, err := strconv.ParseInt(cell, 10, 64); err == nil {
			return v
		}
	case KindFloat:
		if v, err := strconv.ParseFloat(cell, 64); err == nil {
			return v
		}
	case KindBool:
		if v, err := strconv.ParseBool(cell); err == nil {
			return v
		}
	case KindTime:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, cell); err == nil {
				return t
			}
		}
	default:
		return cell
	}
	return nil
}
