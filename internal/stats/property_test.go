package stats

import (
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

var testProfiles = []string{"small", "medium", "large"}

// drawFleet generates a set of districts and the nodes that answered, including
// nodes pointing at no district, at unknown districts, and declared members that
// never answered.
func drawFleet(rt *rapid.T) (map[string]DistrictEntry, map[string]NodeEntry) {
	districtCount := rapid.IntRange(0, 4).Draw(rt, "districts")
	nodeCount := rapid.IntRange(0, 20).Draw(rt, "nodes")

	districts := map[string]DistrictEntry{}
	for i := 0; i < districtCount; i++ {
		id := fmt.Sprintf("d%d", i)
		districts[id] = DistrictEntry{
			ID:                id,
			Profile:           rapid.SampledFrom(testProfiles).Draw(rt, "district_profile"),
			Name:              "dist-" + id,
			Members:           Membership{},
			Capacity:          6000,
			AvailableCapacity: rapid.IntRange(0, 6000).Draw(rt, "avail_capacity"),
			AvailableUIDs:     rapid.IntRange(0, 6000).Draw(rt, "avail_uids"),
		}
	}

	nodes := map[string]NodeEntry{}
	for i := 0; i < nodeCount; i++ {
		id := fmt.Sprintf("n%02d", i)
		choice := rapid.IntRange(-2, districtCount-1).Draw(rt, "placement")
		answered := rapid.Bool().Draw(rt, "answered")

		var districtID, profile string
		switch {
		case choice == -2:
			districtID = ""
			profile = rapid.SampledFrom(testProfiles).Draw(rt, "node_profile")
		case choice == -1:
			districtID = "unknown"
			profile = rapid.SampledFrom(testProfiles).Draw(rt, "node_profile")
		default:
			districtID = fmt.Sprintf("d%d", choice)
			profile = districts[districtID].Profile
			districts[districtID].Members[id] = true
		}
		if !answered && choice >= 0 {
			continue
		}

		maxActive := rapid.IntRange(0, 200).Draw(rt, "max_active")
		nodes[id] = testNode(id, profile, districtID,
			rapid.Bool().Draw(rt, "active"),
			rapid.IntRange(0, 300).Draw(rt, "total"),
			maxActive,
			float64(rapid.IntRange(0, 1000).Draw(rt, "pct_tenths"))/10)
	}
	return districts, nodes
}

func TestProperty_DistrictSummaryInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		districts, nodes := drawFleet(rt)

		summaries := SummarizeDistricts(districts, nodes)

		reported := 0
		undistricted := map[string]int{}
		for id, d := range summaries {
			active, total := 0, 0
			for _, n := range d.Nodes {
				active += n.GearsActive
				total += n.GearsTotal
			}
			if active != d.GearsActive {
				rt.Fatalf("district %s: active gears %d, node sum %d", id, d.GearsActive, active)
			}
			if total != d.GearsTotal {
				rt.Fatalf("district %s: total gears %d, node sum %d", id, d.GearsTotal, total)
			}
			if want := min(d.AvailableActiveGears, d.AvailableCapacity); d.EffectiveAvailableGears != want {
				rt.Fatalf("district %s: effective available %d, want %d", id, d.EffectiveAvailableGears, want)
			}
			if d.NodeCount != d.NodesActive+d.NodesInactive || d.NodeCount != len(d.Nodes) {
				rt.Fatalf("district %s: node counts disagree", id)
			}
			if d.NodeCount > 0 && (d.LowestActiveCapacityPct > d.AvgActiveCapacityPct+1e-9 ||
				d.AvgActiveCapacityPct > d.HighestActiveCapacityPct+1e-9) {
				rt.Fatalf("district %s: average outside min/max", id)
			}

			// answered members and missing members partition the declared membership
			for _, m := range d.MissingNodes {
				if _, ok := nodes[m]; ok {
					rt.Fatalf("district %s: %s reported and missing", id, m)
				}
				if !d.Members[m] {
					rt.Fatalf("district %s: missing %s is not a member", id, m)
				}
			}
			if !d.Undistricted() && len(d.MissingNodes)+d.NodeCount != len(d.Members) {
				rt.Fatalf("district %s: %d missing + %d nodes != %d members",
					id, len(d.MissingNodes), d.NodeCount, len(d.Members))
			}
			if d.Undistricted() {
				undistricted[d.Profile]++
			}
			reported += d.NodeCount
		}

		if reported != len(nodes) {
			rt.Fatalf("%d nodes answered but %d reported", len(nodes), reported)
		}
		for profile, n := range undistricted {
			if n != 1 {
				rt.Fatalf("profile %s has %d undistricted buckets", profile, n)
			}
		}
	})
}

func TestProperty_SummariesIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		districts, nodes := drawFleet(rt)

		first := SummarizeProfiles(SummarizeDistricts(districts, nodes), nil)
		second := SummarizeProfiles(SummarizeDistricts(districts, nodes), nil)

		if !reflect.DeepEqual(first, second) {
			rt.Fatalf("two passes over the same input disagree")
		}
	})
}

func TestProperty_ProfileTotalsMatchDistricts(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		districts, nodes := drawFleet(rt)

		summaries := SummarizeDistricts(districts, nodes)
		profiles := SummarizeProfiles(summaries, nil)

		for name, p := range profiles {
			nodeCount, active, effective := 0, 0, 0
			for _, d := range p.Districts {
				if d.Profile != name {
					rt.Fatalf("district %s listed under profile %s", d.ID, name)
				}
				nodeCount += d.NodeCount
				active += d.GearsActive
				effective += d.EffectiveAvailableGears
			}
			if p.DistrictCount != len(p.Districts) || p.NodeCount != nodeCount || p.GearsActive != active {
				rt.Fatalf("profile %s totals disagree with its districts", name)
			}
			if p.EffectiveAvailableGears != min(p.AvailableActiveGears, p.AvailableCapacity) {
				rt.Fatalf("profile %s effective available %d", name, p.EffectiveAvailableGears)
			}
			if effective > p.EffectiveAvailableGears {
				rt.Fatalf("profile %s effective available %d below district sum %d", name, p.EffectiveAvailableGears, effective)
			}
		}
	})
}
