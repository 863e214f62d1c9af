package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bi-agent/internal/config"
	"github.com/sells-group/bi-agent/internal/fetcher"
	"github.com/sells-group/bi-agent/internal/model"
)

// Opener reads a location's full contents.
type Opener interface {
	ReadAll(ctx context.Context, location string) ([]byte, error)
}

// FileSource reads a collection from a CSV or XLSX export at a local path,
// an http(s) URL or an ftp:// URL. The first row after SkipRows is the
// header.
type FileSource struct {
	opener     Opener
	collection model.Collection
	cfg        config.SourceConfig
	guard      guard
}

// NewFile returns a source for the export described by cfg.
func NewFile(opener Opener, collection model.Collection, cfg config.SourceConfig, opts ...Option) *FileSource {
	return &FileSource{
		opener:     opener,
		collection: collection,
		cfg:        cfg,
		guard:      newGuard("file:"+string(collection), opts),
	}
}

// Fetch downloads and parses the export.
func (s *FileSource) Fetch(ctx context.Context) (model.RawCollection, error) {
	var data []byte
	err := s.guard.run(ctx, "file", "read "+s.cfg.Path, func(ctx context.Context) error {
		var err error
		data, err = s.opener.ReadAll(ctx, s.cfg.Path)
		return err
	})
	if err != nil {
		return model.RawCollection{}, eris.Wrapf(err, "source: file %s", s.collection)
	}

	rows, err := s.parse(ctx, data)
	if err != nil {
		return model.RawCollection{}, eris.Wrapf(err, "source: parse %s", s.cfg.Path)
	}

	records, err := RowsToRecords(rows, s.cfg.IDColumn)
	if err != nil {
		return model.RawCollection{}, eris.Wrapf(err, "source: %s", s.cfg.Path)
	}
	records = uniqueByID(s.collection, records)

	zap.L().Info("source: fetched file collection",
		zap.String("collection", string(s.collection)),
		zap.String("path", s.cfg.Path),
		zap.Int("records", len(records)),
	)
	return model.RawCollection{Collection: s.collection, Records: records}, nil
}

func (s *FileSource) parse(ctx context.Context, data []byte) ([][]string, error) {
	switch fileExt(s.cfg.Path) {
	case ".xlsx":
		return fetcher.ReadXLSX(data, fetcher.XLSXOptions{SheetName: s.cfg.Sheet, SkipRows: s.cfg.SkipRows})
	case ".tsv":
		return fetcher.ReadCSV(ctx, bytes.NewReader(data), fetcher.CSVOptions{Delimiter: '\t', SkipRows: s.cfg.SkipRows, LazyQuotes: true})
	default:
		return fetcher.ReadCSV(ctx, bytes.NewReader(data), fetcher.CSVOptions{SkipRows: s.cfg.SkipRows, LazyQuotes: true})
	}
}

// fileExt returns the lower-cased extension of a path or URL path.
func fileExt(location string) string {
	p := location
	if u, err := url.Parse(location); err == nil && u.Scheme != "" && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// RowsToRecords turns a header row and data rows into raw records. Blank
// header cells become "Column N", repeated headers get a numeric suffix and
// fully blank rows are dropped. When idColumn is set its value is also
// stored as the item id.
func RowsToRecords(rows [][]string, idColumn string) ([]model.RawRecord, error) {
	if len(rows) == 0 {
		return nil, eris.New("no header row")
	}
	header := headerNames(rows[0])

	idIdx := -1
	if idColumn != "" {
		for i, h := range header {
			if strings.EqualFold(h, idColumn) {
				idIdx = i
				break
			}
		}
		if idIdx < 0 {
			return nil, eris.Errorf("id column %q not in header", idColumn)
		}
	}

	records := make([]model.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		rec := make(model.RawRecord, len(header)+1)
		for i, h := range header {
			var v any
			if i < len(row) {
				v = row[i]
			}
			rec[h] = v
		}
		if idIdx >= 0 && idIdx < len(row) {
			rec[model.FieldItemID] = strings.TrimSpace(row[idIdx])
		}
		records = append(records, rec)
	}
	return records, nil
}

func headerNames(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		key := strings.ToLower(h)
		seen[key]++
		if n := seen[key]; n > 1 {
			h = fmt.Sprintf("%s (%d)", h, n)
		}
		out[i] = h
	}
	return out
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
