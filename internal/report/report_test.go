package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/chambridge/capacity-stats/internal/stats"
)

func sampleResults(withCounts bool) *stats.Results {
	districts := map[string]stats.DistrictEntry{
		"d1": {
			ID: "d1", Profile: "small", Name: "small_1",
			Members:  stats.Membership{"node1": true, "node2": true},
			Capacity: 6000, AvailableCapacity: 5000, AvailableUIDs: 5000,
		},
	}
	nodes := map[string]stats.NodeEntry{
		"node1": stats.NodeFromFacts("node1", stats.Facts{
			"node_profile": "small", "district_uuid": "d1", "district_active": "true",
			"gears_total_count": "30", "max_active_gears": "100", "active_capacity": "20",
		}),
		"node9": stats.NodeFromFacts("node9", stats.Facts{
			"node_profile": "medium", "gears_total_count": "4", "max_active_gears": "50", "active_capacity": "10",
		}),
	}

	res := &stats.Results{
		Timings:   stats.Timings{"get_node_entries": 0.25, "get_district_entries": 0.01},
		Nodes:     nodes,
		Districts: districts,
	}
	if withCounts {
		counter := stats.NewRecordCounter()
		counter.Add(stats.UserRecord{Login: "alice", Applications: []stats.ApplicationRecord{{
			ID: "a1", Name: "blog", Profile: "small",
			Groups: []stats.GroupRecord{{ID: "g1", Gears: []stats.GearRecord{{
				ID: "x1", Profile: "small", Components: []string{"redhat/cart-php-5.3/comp-web"},
			}}}},
		}}})
		res.CountAll, res.CountByProfile, res.CountByUser = counter.Result()
	}
	res.DistrictSummaries = stats.SummarizeDistricts(districts, nodes)
	res.ProfileSummaries = stats.SummarizeProfiles(res.DistrictSummaries, res.CountByProfile)
	return res
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"TSV", FormatTSV, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", FormatXML, false},
		{"csv", "", true},
	}

	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestRender_UnknownFormat(t *testing.T) {
	t.Parallel()

	err := Render(&bytes.Buffer{}, sampleResults(false), Format("pdf"))
	assert.Error(t, err)
}

func TestRender_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResults(true), FormatText))
	out := buf.String()

	assert.Contains(t, out, "PROFILE SUMMARIES")
	assert.Contains(t, out, "small_1")
	assert.Contains(t, out, stats.UndistrictedName)
	assert.Contains(t, out, "MISSING NODES")
	assert.Contains(t, out, "node2")
	assert.Contains(t, out, "RECORDED")
	assert.Contains(t, out, "cartridge php")
	assert.Contains(t, out, "get_node_entries")
}

func TestRender_TextWithoutCounts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResults(false), FormatText))

	assert.NotContains(t, buf.String(), "RECORDED")
}

func TestRender_TSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResults(false), FormatTSV))

	r := csv.NewReader(&buf)
	r.Comma = '\t'
	rows, err := r.ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3, "header plus one row per district summary")
	assert.Equal(t, tsvHeader, rows[0])
	assert.Equal(t, "medium", rows[1][0])
	assert.Equal(t, stats.UndistrictedID("medium"), rows[1][1])
	assert.Equal(t, "small", rows[2][0])
	assert.Equal(t, "small_1", rows[2][2])
	assert.Equal(t, "node2", rows[2][len(rows[2])-1])
}

func TestRender_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResults(true), FormatJSON))

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	for _, key := range []string{"timings", "node_entries", "district_entries", "district_summaries", "profile_summaries", "count_all", "count_by_profile", "count_by_user"} {
		assert.Contains(t, doc, key)
	}

	var profiles map[string]map[string]any
	require.NoError(t, json.Unmarshal(doc["profile_summaries"], &profiles))
	assert.Equal(t, float64(20), profiles["small"]["total_active_gears"])
	assert.Equal(t, "small_1", profiles["small"]["districts"].([]any)[0].(map[string]any)["name"])
}

func TestRender_JSONOmitsCountsWhenNotRequested(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResults(false), FormatJSON))

	assert.NotContains(t, buf.String(), "count_all")
	assert.NotContains(t, buf.String(), "recorded")
}

func TestRender_YAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResults(true), FormatYAML))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	summaries := doc["district_summaries"].(map[string]any)
	d1 := summaries["d1"].(map[string]any)
	assert.Equal(t, "small_1", d1["name"], "embedded district fields are inlined")
	assert.Equal(t, 1, d1["nodes_count"])
	assert.Contains(t, doc, "count_all")
}

func TestRender_XML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResults(true), FormatXML))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, "<capacity_stats>")
	assert.Contains(t, out, `<entry key="php">1</entry>`)
	assert.Contains(t, out, `<profile name="small">`)

	// the document must be well formed
	dec := xml.NewDecoder(strings.NewReader(out))
	for {
		_, err := dec.Token()
		if err != nil {
			assert.Equal(t, "EOF", err.Error())
			break
		}
	}
}

func TestFormat_ContentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "application/json", FormatJSON.ContentType())
	assert.Equal(t, "text/plain; charset=utf-8", FormatText.ContentType())
}
