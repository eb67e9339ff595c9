package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"mcsim/internal/domain"
)

// ErrEmptyCSV is returned when a CSV file holds no price rows.
var ErrEmptyCSV = errors.New("store: csv has no price rows")

// LoadCSV reads bars from a CSV file. Two layouts are accepted, each with an
// optional header row: timestamp,open,high,low,close,volume or a single
// close column. Timestamps may be RFC 3339, YYYY-MM-DD or Unix milliseconds.
func LoadCSV(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv: %w", err)
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return bars, nil
}

// ReadCSV parses bars from r using the layouts described on LoadCSV.
func ReadCSV(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []domain.Bar
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if line == 1 && isHeader(rec) {
			continue
		}

		bar, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, ErrEmptyCSV
	}
	return bars, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	first := strings.TrimSpace(rec[0])
	if _, err := strconv.ParseFloat(first, 64); err == nil {
		return false
	}
	_, err := parseTimestamp(first)
	return err != nil
}

func parseRow(rec []string) (domain.Bar, error) {
	switch len(rec) {
	case 1:
		c, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("parsing close: %w", err)
		}
		return domain.Bar{Open: c, High: c, Low: c, Close: c}, nil
	case 6:
		ts, err := parseTimestamp(strings.TrimSpace(rec[0]))
		if err != nil {
			return domain.Bar{}, err
		}
		var v [5]float64
		for i := range v {
			v[i], err = strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				return domain.Bar{}, fmt.Errorf("parsing column %d: %w", i+2, err)
			}
		}
		return domain.Bar{Timestamp: ts, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}, nil
	default:
		return domain.Bar{}, fmt.Errorf("expected 1 or 6 columns, got %d", len(rec))
	}
}

func parseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
