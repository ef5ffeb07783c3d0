package ioformats

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pagepress/internal/models"
)

// ReadSources reads inputs from a CSV (header with "url", optional "title"
// and "pending_url") or NDJSON file. If ext cannot be determined, tries CSV
// first then NDJSON. Sources without an id get their 1-based position.
func ReadSources(path string) ([]models.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []models.Source
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		out, err = readCSV(f)
	case ".ndjson", ".jsonl":
		out, err = readNDJSON(f)
	default:
		data, rerr := io.ReadAll(f)
		if rerr != nil {
			return nil, rerr
		}
		// try csv then ndjson
		out, err = readCSV(strings.NewReader(string(data)))
		if err != nil || len(out) == 0 {
			out, err = readNDJSON(strings.NewReader(string(data)))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return withIDs(out), nil
}

// SourcesFromURLs wraps bare URLs, skipping blanks.
func SourcesFromURLs(urls []string) []models.Source {
	var out []models.Source
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, models.Source{URL: u})
		}
	}
	return withIDs(out)
}

func withIDs(in []models.Source) []models.Source {
	for i := range in {
		if in[i].ID == "" {
			in[i].ID = strconv.Itoa(i + 1)
		}
	}
	return in
}

func readCSV(r io.Reader) ([]models.Source, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("empty csv")
	}
	cols := map[string]int{"url": -1, "title": -1, "pending_url": -1, "id": -1}
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if c, ok := cols[key]; ok && c == -1 {
			cols[key] = i
		}
	}
	if cols["url"] == -1 {
		return nil, errors.New("csv must contain a 'url' header column")
	}
	cell := func(row []string, name string) string {
		if c := cols[name]; c >= 0 && c < len(row) {
			return strings.TrimSpace(row[c])
		}
		return ""
	}
	var out []models.Source
	for _, row := range rows[1:] {
		u := cell(row, "url")
		if u == "" {
			continue
		}
		out = append(out, models.Source{
			ID:         cell(row, "id"),
			URL:        u,
			PendingURL: cell(row, "pending_url"),
			Title:      cell(row, "title"),
		})
	}
	return out, nil
}

func readNDJSON(r io.Reader) ([]models.Source, error) {
	var out []models.Source
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		// allow raw string or {"url": "...", "title": "..."}
		if strings.HasPrefix(line, "{") {
			var src models.Source
			if err := json.Unmarshal([]byte(line), &src); err == nil && src.URL != "" {
				out = append(out, src)
				continue
			}
		}
		out = append(out, models.Source{URL: strings.Trim(line, `"`)})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("no urls found in ndjson")
	}
	return out, nil
}

// WriteNDJSON writes any JSON-marshalable items as NDJSON to w.
func WriteNDJSON[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}
