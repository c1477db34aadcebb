package stats

import (
	"sort"

	"github.com/samber/lo"
)

// districtAccumulator carries the running totals for one summary while nodes
// are folded in. Each summary has exactly one accumulator.
type districtAccumulator struct {
	summary     *DistrictSummary
	capacitySum float64
	missing     map[string]struct{}
}

// newDistrictAccumulator seeds a summary from a known district. Every declared
// member starts out missing.
func newDistrictAccumulator(d DistrictEntry) *districtAccumulator {
	missing := make(map[string]struct{}, len(d.Members))
	for id := range d.Members {
		missing[id] = struct{}{}
	}
	return &districtAccumulator{
		summary: &DistrictSummary{
			DistrictEntry: d,
			Nodes:         []NodeEntry{},
		},
		missing: missing,
	}
}

// newUndistrictedAccumulator creates the synthetic bucket for nodes of the
// given profile that report no known district. Its capacity fields stay zero.
func newUndistrictedAccumulator(profile string) *districtAccumulator {
	return newDistrictAccumulator(DistrictEntry{
		ID:      UndistrictedID(profile),
		Profile: profile,
		Name:    UndistrictedName,
		Members: Membership{},
	})
}

// foldNode adds one reporting node to the accumulator.
func foldNode(acc *districtAccumulator, node NodeEntry) *districtAccumulator {
	s := acc.summary
	s.Nodes = append(s.Nodes, node)
	delete(acc.missing, node.ID)

	s.NodeCount++
	if node.DistrictActive {
		s.NodesActive++
	} else {
		s.NodesInactive++
	}
	s.GearsTotal += node.GearsTotal
	s.GearsActive += node.GearsActive
	s.AvailableActiveGears += node.MaxActiveGears - node.GearsActive
	acc.capacitySum += node.ActiveCapacityPct

	return acc
}

// finish computes the derived fields once every node has been folded in.
func (acc *districtAccumulator) finish() *DistrictSummary {
	s := acc.summary
	if s.NodeCount > 0 {
		s.AvgActiveCapacityPct = acc.capacitySum / float64(s.NodeCount)
		s.LowestActiveCapacityPct = lo.MinBy(s.Nodes, func(a, b NodeEntry) bool {
			return a.ActiveCapacityPct < b.ActiveCapacityPct
		}).ActiveCapacityPct
		s.HighestActiveCapacityPct = lo.MaxBy(s.Nodes, func(a, b NodeEntry) bool {
			return a.ActiveCapacityPct > b.ActiveCapacityPct
		}).ActiveCapacityPct
	}
	s.EffectiveAvailableGears = min(s.AvailableActiveGears, s.AvailableCapacity)

	s.MissingNodes = lo.Keys(acc.missing)
	sort.Strings(s.MissingNodes)

	return s
}

// SummarizeDistricts joins node telemetry to district definitions. Nodes
// whose district is absent or unknown land in a synthetic "(NONE)" bucket per
// profile, stored under UndistrictedID(profile). A real district already
// holding that id keeps it and the bucket is dropped.
//
// The result depends only on the inputs: nodes are folded in id order.
func SummarizeDistricts(districts map[string]DistrictEntry, nodes map[string]NodeEntry) map[string]*DistrictSummary {
	accs := make(map[string]*districtAccumulator, len(districts))
	for id, d := range districts {
		accs[id] = newDistrictAccumulator(d)
	}
	undistricted := make(map[string]*districtAccumulator)

	ids := lo.Keys(nodes)
	sort.Strings(ids)

	for _, id := range ids {
		node := nodes[id]
		acc, ok := accs[node.DistrictID]
		if !ok {
			acc, ok = undistricted[node.Profile]
			if !ok {
				acc = newUndistrictedAccumulator(node.Profile)
				undistricted[node.Profile] = acc
			}
		}
		foldNode(acc, node)
	}

	for _, acc := range undistricted {
		if _, taken := accs[acc.summary.ID]; taken {
			continue
		}
		accs[acc.summary.ID] = acc
	}

	summaries := make(map[string]*DistrictSummary, len(accs))
	for id, acc := range accs {
		summaries[id] = acc.finish()
	}
	return summaries
}
