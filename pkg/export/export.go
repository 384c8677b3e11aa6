// VN Tracker
// Copyright (c) 2025 The VN Tracker Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of VN Tracker.
//
// VN Tracker is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// VN Tracker is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with VN Tracker.  If not, see <http://www.gnu.org/licenses/>.

// Package export writes recorded reading time out as CSV and JSON files.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"slices"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/vnclub/vntracker/pkg/store"
	"github.com/vnclub/vntracker/pkg/tracker"
)

const (
	AllTitlesFile = "all_titles.csv"
	JSONFile      = "timelog_export.json"

	FormatCSV  = "csv"
	FormatJSON = "json"
)

var ErrUnknownTitle = errors.New("no records for title")

// DayRow is one line of a per-title export.
type DayRow struct {
	Date    string  `csv:"Date"`
	Seconds float64 `csv:"Seconds"`
}

// TitleDayRow is one line of the all-titles export.
type TitleDayRow struct {
	Title   string  `csv:"Title"`
	Date    string  `csv:"Date"`
	Seconds float64 `csv:"Seconds"`
}

func seconds(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000
}

func sortedKeys(records tracker.Records) []tracker.Key {
	keys := make([]tracker.Key, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b tracker.Key) int {
		if a.Title != b.Title {
			if a.Title < b.Title {
				return -1
			}
			return 1
		}
		return a.Date.Compare(b.Date)
	})
	return keys
}

// TitleRows returns the days recorded for title in date order.
func TitleRows(records tracker.Records, title string) []DayRow {
	var rows []DayRow
	for _, k := range sortedKeys(records) {
		if k.Title != title {
			continue
		}
		rows = append(rows, DayRow{Date: k.Date.String(), Seconds: seconds(records[k])})
	}
	return rows
}

// AllRows returns every record ordered by title then date.
func AllRows(records tracker.Records) []TitleDayRow {
	keys := sortedKeys(records)
	rows := make([]TitleDayRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, TitleDayRow{Title: k.Title, Date: k.Date.String(), Seconds: seconds(records[k])})
	}
	return rows
}

// WriteTitleCSV writes the Date,Seconds table for one title.
func WriteTitleCSV(w io.Writer, records tracker.Records, title string) error {
	rows := TitleRows(records, title)
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTitle, title)
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to write title CSV: %w", err)
	}
	return nil
}

// WriteAllCSV writes the Title,Date,Seconds table for every title.
func WriteAllCSV(w io.Writer, records tracker.Records) error {
	if err := gocsv.Marshal(AllRows(records), w); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// WriteJSON writes records in the same format as the JSON time log, so an
// export can be dropped in as a store.
func WriteJSON(w io.Writer, records tracker.Records) error {
	data, err := store.EncodeDocument(records)
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// TitleFileName returns a filesystem safe CSV name for title.
func TitleFileName(title string) string {
	return url.PathEscape(title) + "_timelog.csv"
}

// ToDir writes one CSV per title, the all-titles CSV and a JSON copy into
// dir and returns the paths written.
func ToDir(fs afero.Fs, dir string, records tracker.Records) ([]string, error) {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	var written []string
	write := func(name string, fn func(io.Writer) error) error {
		var buf bytes.Buffer
		if err := fn(&buf); err != nil {
			return err
		}
		path := filepath.Join(dir, name)
		if err := afero.WriteFile(fs, path, buf.Bytes(), 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}

	for _, title := range records.Titles() {
		err := write(TitleFileName(title), func(w io.Writer) error {
			return WriteTitleCSV(w, records, title)
		})
		if err != nil {
			return written, err
		}
	}
	if err := write(AllTitlesFile, func(w io.Writer) error { return WriteAllCSV(w, records) }); err != nil {
		return written, err
	}
	if err := write(JSONFile, func(w io.Writer) error { return WriteJSON(w, records) }); err != nil {
		return written, err
	}

	log.Info().Str("dir", dir).Int("files", len(written)).Msg("export: wrote records")
	return written, nil
}
