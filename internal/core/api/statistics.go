package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/labelkeeper/internal/types"
)

// utf8BOM lets spreadsheet tools detect the export encoding.
const utf8BOM = "\ufeff"

// timeLayouts are tried in order when parsing statistics bounds. Values
// without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseStatsFilter builds a filter from raw query values. Empty bounds are
// open; unparseable bounds are rejected with types.ErrInvalidTimeRange.
func ParseStatsFilter(user types.UserID, label, from, to string) (types.StatsFilter, error) {
	f := types.StatsFilter{UserID: user, Label: strings.TrimSpace(label)}

	var err error
	if f.From, err = parseBound("from", from); err != nil {
		return types.StatsFilter{}, err
	}
	if f.To, err = parseBound("to", to); err != nil {
		return types.StatsFilter{}, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return types.StatsFilter{}, fmt.Errorf("%w: to is before from", types.ErrInvalidTimeRange)
	}
	return f, nil
}

func parseBound(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s=%q", types.ErrInvalidTimeRange, name, raw)
}

// Statistics returns total payloads and the per-label breakdown, sorted by
// label, for the filter.
func (s *LabelService) Statistics(ctx context.Context, f types.StatsFilter) (types.Statistics, error) {
	return s.store.Statistics(ctx, f)
}

// Export is a rendered statistics CSV file.
type Export struct {
	Filename string
	Data     []byte
}

// ExportCSV renders the statistics for f as CSV: a UTF-8 BOM, the header
// label,count,percentage, one row per label with two decimals, a blank row
// and a total_payloads row.
func (s *LabelService) ExportCSV(ctx context.Context, f types.StatsFilter) (Export, error) {
	stats, err := s.store.Statistics(ctx, f)
	if err != nil {
		return Export{}, err
	}
	data, err := renderCSV(stats)
	if err != nil {
		return Export{}, err
	}
	return Export{
		Filename: fmt.Sprintf("statistics_%s_%s.csv", f.UserID, s.now().UTC().Format("20060102T150405Z")),
		Data:     data,
	}, nil
}

func renderCSV(stats types.Statistics) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)

	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	records := [][]string{{"label", "count", "percentage"}}
	for _, lc := range stats.ByLabel {
		records = append(records, []string{
			lc.Label,
			strconv.FormatInt(lc.Count, 10),
			strconv.FormatFloat(lc.Percentage, 'f', 2, 64),
		})
	}
	records = append(records,
		[]string{},
		[]string{"total_payloads", strconv.FormatInt(stats.TotalPayloads, 10)},
	)

	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}
