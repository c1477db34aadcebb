package processor

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/chambridge/capacity-stats/internal/stats"
)

// RequiredHeaders is the subset of CSV headers that must be present
var RequiredHeaders = []string{
	"uuid", "name", "gear_profile", "max_capacity",
	"available_capacity", "available_uids", "server_identities",
}

// DistrictWriter persists one district definition.
type DistrictWriter interface {
	UpsertDistrict(ctx context.Context, d stats.DistrictEntry) error
}

// ProcessDistrictsCSV reads district definitions from a CSV reader and writes
// each through repo. server_identities holds the member nodes separated by
// "|", each optionally suffixed ":false" when inactive. Rows that fail to
// parse or persist are logged and skipped. It returns the number of districts
// written.
func ProcessDistrictsCSV(ctx context.Context, repo DistrictWriter, reader *csv.Reader, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV records: %w", err)
	}
	if len(records) < 1 {
		return 0, fmt.Errorf("empty CSV file")
	}

	headers := records[0]
	headerIndices := make(map[string]int)
	for i, h := range headers {
		headerIndices[strings.TrimSpace(h)] = i
	}
	for _, required := range RequiredHeaders {
		if _, exists := headerIndices[required]; !exists {
			return 0, fmt.Errorf("missing required header: %s", required)
		}
	}

	written := 0
	for i, record := range records[1:] {
		row := i + 1
		if len(record) != len(headers) {
			logger.Warn("skipping record: wrong field count",
				zap.Int("record", row), zap.Int("want", len(headers)), zap.Int("got", len(record)))
			continue
		}

		district, err := parseDistrict(record, headerIndices)
		if err != nil {
			logger.Warn("skipping record", zap.Int("record", row), zap.Error(err))
			continue
		}
		if err := repo.UpsertDistrict(ctx, district); err != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			logger.Warn("skipping record: failed to write district",
				zap.Int("record", row), zap.String("district", district.Name), zap.Error(err))
			continue
		}
		written++
	}

	logger.Info("imported districts", zap.Int("written", written), zap.Int("records", len(records)-1))
	return written, nil
}

func parseDistrict(record []string, idx map[string]int) (stats.DistrictEntry, error) {
	field := func(name string) string { return strings.TrimSpace(record[idx[name]]) }

	d := stats.DistrictEntry{
		ID:      field("uuid"),
		Name:    field("name"),
		Profile: field("gear_profile"),
		Members: stats.Membership{},
	}
	if d.ID == "" || d.Profile == "" {
		return d, fmt.Errorf("uuid and gear_profile are required")
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"max_capacity", &d.Capacity},
		{"available_capacity", &d.AvailableCapacity},
		{"available_uids", &d.AvailableUIDs},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(field(f.name))
		if err != nil {
			return d, fmt.Errorf("invalid %s %q: %w", f.name, field(f.name), err)
		}
		*f.dst = v
	}

	for _, member := range strings.Split(field("server_identities"), "|") {
		member = strings.TrimSpace(member)
		if member == "" {
			continue
		}
		host, flag, hasFlag := strings.Cut(member, ":")
		active := true
		if hasFlag {
			v, err := strconv.ParseBool(strings.TrimSpace(flag))
			if err != nil {
				return d, fmt.Errorf("invalid active flag for member %q: %w", host, err)
			}
			active = v
		}
		d.Members[strings.TrimSpace(host)] = active
	}
	return d, nil
}
