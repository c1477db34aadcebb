package stats

import (
	"encoding/xml"
	"sort"
	"strconv"

	"github.com/samber/lo"
)

// NoDistrict is the district id reported by nodes that belong to no district.
const NoDistrict = "NONE"

// UndistrictedName is the display name of the synthetic per-profile bucket.
const UndistrictedName = "(NONE)"

// Membership maps a district member node id to its active flag.
type Membership map[string]bool

// Histogram tallies occurrences of a name.
type Histogram map[string]int

// Distribution tallies how many users have exactly K of something.
type Distribution map[int]int

// NodeEntry is one node's capacity telemetry.
type NodeEntry struct {
	ID                string  `json:"id" yaml:"id" xml:"id"`
	Name              string  `json:"name" yaml:"name" xml:"name"`
	Profile           string  `json:"node_profile" yaml:"node_profile" xml:"node_profile"`
	DistrictID        string  `json:"district_uuid" yaml:"district_uuid" xml:"district_uuid"`
	DistrictActive    bool    `json:"district_active" yaml:"district_active" xml:"district_active"`
	GearsTotal        int     `json:"gears_total_count" yaml:"gears_total_count" xml:"gears_total_count"`
	GearsActive       int     `json:"gears_active_count" yaml:"gears_active_count" xml:"gears_active_count"`
	GearsInactive     int     `json:"gears_inactive_count" yaml:"gears_inactive_count" xml:"gears_inactive_count"`
	MaxGears          int     `json:"max_gears" yaml:"max_gears" xml:"max_gears"`
	MaxActiveGears    int     `json:"max_active_gears" yaml:"max_active_gears" xml:"max_active_gears"`
	CapacityPct       float64 `json:"gears_usage_pct" yaml:"gears_usage_pct" xml:"gears_usage_pct"`
	ActiveCapacityPct float64 `json:"gears_active_usage_pct" yaml:"gears_active_usage_pct" xml:"gears_active_usage_pct"`
}

// DistrictEntry is a district definition as stored in the persisted store.
type DistrictEntry struct {
	ID                string     `json:"uuid" yaml:"uuid" xml:"uuid"`
	Profile           string     `json:"profile" yaml:"profile" xml:"profile"`
	Name              string     `json:"name" yaml:"name" xml:"name"`
	Members           Membership `json:"server_identities" yaml:"server_identities" xml:"server_identities"`
	Capacity          int        `json:"district_capacity" yaml:"district_capacity" xml:"district_capacity"`
	AvailableCapacity int        `json:"dist_avail_capacity" yaml:"dist_avail_capacity" xml:"dist_avail_capacity"`
	AvailableUIDs     int        `json:"dist_avail_uids" yaml:"dist_avail_uids" xml:"dist_avail_uids"`
}

// DistrictSummary is a district with the telemetry of its member nodes folded in.
type DistrictSummary struct {
	DistrictEntry `yaml:",inline"`

	NodeCount                int         `json:"nodes_count" yaml:"nodes_count" xml:"nodes_count"`
	NodesActive              int         `json:"nodes_active" yaml:"nodes_active" xml:"nodes_active"`
	NodesInactive            int         `json:"nodes_inactive" yaml:"nodes_inactive" xml:"nodes_inactive"`
	GearsTotal               int         `json:"total_gears" yaml:"total_gears" xml:"total_gears"`
	GearsActive              int         `json:"total_active_gears" yaml:"total_active_gears" xml:"total_active_gears"`
	AvailableActiveGears     int         `json:"available_active_gears" yaml:"available_active_gears" xml:"available_active_gears"`
	EffectiveAvailableGears  int         `json:"effective_available_gears" yaml:"effective_available_gears" xml:"effective_available_gears"`
	LowestActiveCapacityPct  float64     `json:"lowest_active_capacity_pct" yaml:"lowest_active_capacity_pct" xml:"lowest_active_capacity_pct"`
	HighestActiveCapacityPct float64     `json:"highest_active_capacity_pct" yaml:"highest_active_capacity_pct" xml:"highest_active_capacity_pct"`
	AvgActiveCapacityPct     float64     `json:"avg_active_capacity_pct" yaml:"avg_active_capacity_pct" xml:"avg_active_capacity_pct"`
	Nodes                    []NodeEntry `json:"nodes" yaml:"nodes" xml:"nodes>node"`
	MissingNodes             []string    `json:"missing_nodes" yaml:"missing_nodes" xml:"missing_nodes>node"`
}

// UndistrictedID is the summary id of the synthetic bucket for profile. It
// never parses as a UUID, and stored district ids always do.
func UndistrictedID(profile string) string {
	return NoDistrict + "-" + profile
}

// Undistricted reports whether s is the synthetic bucket for nodes without a district.
func (s *DistrictSummary) Undistricted() bool {
	return s.ID == UndistrictedID(s.Profile)
}

// RecordCounts are tallies of persisted applications, gears and cartridges.
type RecordCounts struct {
	Apps            int       `json:"total_apps" yaml:"total_apps" xml:"total_apps"`
	Gears           int       `json:"total_gears" yaml:"total_gears" xml:"total_gears"`
	Cartridges      Histogram `json:"cartridges" yaml:"cartridges" xml:"cartridges"`
	CartridgesShort Histogram `json:"cartridges_short" yaml:"cartridges_short" xml:"cartridges_short"`
}

// GlobalCounts extends RecordCounts with the per-user distributions.
type GlobalCounts struct {
	RecordCounts `yaml:",inline"`

	UsersWithNumApps  Distribution `json:"users_with_num_apps" yaml:"users_with_num_apps" xml:"users_with_num_apps"`
	UsersWithNumGears Distribution `json:"users_with_num_gears" yaml:"users_with_num_gears" xml:"users_with_num_gears"`
}

// UserProfileCount is one user's tally within a single profile.
type UserProfileCount struct {
	Apps  int `json:"num_apps" yaml:"num_apps" xml:"num_apps"`
	Gears int `json:"num_gears" yaml:"num_gears" xml:"num_gears"`
}

// UserProfileCounts maps profile to a user's tally.
type UserProfileCounts map[string]*UserProfileCount

// UserCount is one user's tally across all profiles.
type UserCount struct {
	Login      string            `json:"login" yaml:"login" xml:"login"`
	Profiles   UserProfileCounts `json:"profiles" yaml:"profiles" xml:"profiles"`
	TotalApps  int               `json:"total_apps" yaml:"total_apps" xml:"total_apps"`
	TotalGears int               `json:"total_gears" yaml:"total_gears" xml:"total_gears"`
}

// ProfileSummary rolls up every district summary sharing a profile.
type ProfileSummary struct {
	Profile                  string             `json:"profile" yaml:"profile" xml:"profile"`
	DistrictCount            int                `json:"district_count" yaml:"district_count" xml:"district_count"`
	NodeCount                int                `json:"nodes_count" yaml:"nodes_count" xml:"nodes_count"`
	NodesActive              int                `json:"nodes_active" yaml:"nodes_active" xml:"nodes_active"`
	NodesInactive            int                `json:"nodes_inactive" yaml:"nodes_inactive" xml:"nodes_inactive"`
	GearsTotal               int                `json:"total_gears" yaml:"total_gears" xml:"total_gears"`
	GearsActive              int                `json:"total_active_gears" yaml:"total_active_gears" xml:"total_active_gears"`
	AvailableActiveGears     int                `json:"available_active_gears" yaml:"available_active_gears" xml:"available_active_gears"`
	EffectiveAvailableGears  int                `json:"effective_available_gears" yaml:"effective_available_gears" xml:"effective_available_gears"`
	DistrictCapacity         int                `json:"district_capacity" yaml:"district_capacity" xml:"district_capacity"`
	AvailableCapacity        int                `json:"dist_avail_capacity" yaml:"dist_avail_capacity" xml:"dist_avail_capacity"`
	AvailableUIDs            int                `json:"dist_avail_uids" yaml:"dist_avail_uids" xml:"dist_avail_uids"`
	LowestActiveCapacityPct  float64            `json:"lowest_active_capacity_pct" yaml:"lowest_active_capacity_pct" xml:"lowest_active_capacity_pct"`
	HighestActiveCapacityPct float64            `json:"highest_active_capacity_pct" yaml:"highest_active_capacity_pct" xml:"highest_active_capacity_pct"`
	AvgActiveCapacityPct     float64            `json:"avg_active_capacity_pct" yaml:"avg_active_capacity_pct" xml:"avg_active_capacity_pct"`
	MissingNodes             []string           `json:"missing_nodes" yaml:"missing_nodes" xml:"missing_nodes>node"`
	Districts                []*DistrictSummary `json:"districts" yaml:"districts" xml:"districts>district"`
	Recorded                 *RecordCounts      `json:"recorded,omitempty" yaml:"recorded,omitempty" xml:"recorded,omitempty"`
}

// XML has no map encoding; maps are written as sorted entry elements.

func (m Membership) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return encodeEntries(e, start, keys, func(k string) string { return strconv.FormatBool(m[k]) })
}

func (h Histogram) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	keys := lo.Keys(h)
	sort.Strings(keys)
	return encodeEntries(e, start, keys, func(k string) string { return strconv.Itoa(h[k]) })
}

func (d Distribution) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	nums := lo.Keys(d)
	sort.Ints(nums)
	keys := lo.Map(nums, func(n int, _ int) string { return strconv.Itoa(n) })
	return encodeEntries(e, start, keys, func(k string) string {
		n, _ := strconv.Atoi(k)
		return strconv.Itoa(d[n])
	})
}

func (p UserProfileCounts) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	keys := lo.Keys(p)
	sort.Strings(keys)
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, k := range keys {
		el := xml.StartElement{Name: xml.Name{Local: "profile"}, Attr: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: k}}}
		if err := e.EncodeElement(p[k], el); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func encodeEntries(e *xml.Encoder, start xml.StartElement, keys []string, value func(string) string) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, k := range keys {
		el := xml.StartElement{Name: xml.Name{Local: "entry"}, Attr: []xml.Attr{{Name: xml.Name{Local: "key"}, Value: k}}}
		if err := e.EncodeElement(value(k), el); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}
