package stats

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Facts is the raw key/value fact set a node reports about itself.
type Facts map[string]string

// FactsFromJSON flattens a decoded JSON object into Facts. Non-string values
// are formatted with %v so "42" and 42 read the same.
func FactsFromJSON(raw map[string]any) Facts {
	facts := make(Facts, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			facts[k] = val
		case float64:
			facts[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			facts[k] = fmt.Sprint(val)
		}
	}
	return facts
}

// NodeFromFacts builds a NodeEntry for the node with the given id. Values
// that do not parse read as zero.
//
// Gear counts come from the node's own accounting, which skips gears without
// a git repository; they can legitimately trail the persisted gear count.
func NodeFromFacts(id string, facts Facts) NodeEntry {
	node := NodeEntry{
		ID:                id,
		Name:              shortName(id),
		Profile:           facts["node_profile"],
		DistrictID:        facts["district_uuid"],
		DistrictActive:    parseBool(facts["district_active"]),
		GearsTotal:        parseInt(facts["gears_total_count"]),
		MaxGears:          parseInt(facts["max_gears"]),
		MaxActiveGears:    parseInt(facts["max_active_gears"]),
		CapacityPct:       parseFloat(facts["capacity"]),
		ActiveCapacityPct: parseFloat(facts["active_capacity"]),
	}
	if node.DistrictID == "" {
		node.DistrictID = NoDistrict
	}
	if hostname := facts["public_hostname"]; hostname != "" {
		node.Name = shortName(hostname)
	}

	node.GearsActive = int(math.Round(float64(node.MaxActiveGears) * node.ActiveCapacityPct / 100))
	node.GearsInactive = node.GearsTotal - node.GearsActive

	return node
}

func shortName(host string) string {
	name, _, _ := strings.Cut(host, ".")
	return name
}

func parseInt(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
