package report

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/chambridge/capacity-stats/internal/stats"
)

type Format string

const (
	FormatText Format = "text"
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXML  Format = "xml"
)

var formats = []Format{FormatText, FormatTSV, FormatJSON, FormatYAML, FormatXML}

// ParseFormat accepts a format name case-insensitively. An empty name is text.
func ParseFormat(name string) (Format, error) {
	if name == "" {
		return FormatText, nil
	}
	f := Format(strings.ToLower(name))
	if !lo.Contains(formats, f) {
		return "", fmt.Errorf("unknown format %q (want one of %s)", name, strings.Join(lo.Map(formats, func(f Format, _ int) string {
			return string(f)
		}), ", "))
	}
	return f, nil
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatXML:
		return "application/xml"
	case FormatTSV:
		return "text/tab-separated-values"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Render writes res to w in the given format.
func Render(w io.Writer, res *stats.Results, format Format) error {
	switch format {
	case FormatText:
		return renderText(w, res)
	case FormatTSV:
		return renderTSV(w, res)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatXML:
		return renderXML(w, res)
	}
	return fmt.Errorf("unknown format %q", format)
}

type xmlProfileCounts struct {
	Name string `xml:"name,attr"`
	stats.RecordCounts
}

type xmlResults struct {
	XMLName           xml.Name                 `xml:"capacity_stats"`
	Timings           stats.Timings            `xml:"timings"`
	Nodes             []stats.NodeEntry        `xml:"node_entries>node"`
	Districts         []stats.DistrictEntry    `xml:"district_entries>district"`
	DistrictSummaries []*stats.DistrictSummary `xml:"district_summaries>district"`
	ProfileSummaries  []*stats.ProfileSummary  `xml:"profile_summaries>profile"`
	CountAll          *stats.GlobalCounts      `xml:"count_all,omitempty"`
	CountByProfile    []xmlProfileCounts       `xml:"count_by_profile>profile,omitempty"`
	CountByUser       []*stats.UserCount       `xml:"count_by_user>user,omitempty"`
}

// sortedValues returns the map values ordered by key.
func sortedValues[V any](m map[string]V) []V {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return lo.Map(keys, func(k string, _ int) V { return m[k] })
}

func renderXML(w io.Writer, res *stats.Results) error {
	view := xmlResults{
		Timings:           res.Timings,
		Nodes:             sortedValues(res.Nodes),
		Districts:         sortedValues(res.Districts),
		DistrictSummaries: orderedDistricts(res.DistrictSummaries),
		ProfileSummaries:  sortedValues(res.ProfileSummaries),
		CountAll:          res.CountAll,
		CountByUser:       sortedValues(res.CountByUser),
	}
	for _, name := range lo.Keys(res.CountByProfile) {
		view.CountByProfile = append(view.CountByProfile, xmlProfileCounts{Name: name, RecordCounts: *res.CountByProfile[name]})
	}
	sort.Slice(view.CountByProfile, func(i, j int) bool {
		return view.CountByProfile[i].Name < view.CountByProfile[j].Name
	})

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(view); err != nil {
		return fmt.Errorf("failed to encode xml: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// orderedDistricts lists summaries by profile, then name, then id.
func orderedDistricts(m map[string]*stats.DistrictSummary) []*stats.DistrictSummary {
	out := lo.Values(m)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Profile != b.Profile {
			return a.Profile < b.Profile
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out
}
