package stats

import (
	"sort"

	"github.com/samber/lo"
)

type profileAccumulator struct {
	summary             *ProfileSummary
	weightedCapacitySum float64
}

func newProfileAccumulator(profile string) *profileAccumulator {
	return &profileAccumulator{
		summary: &ProfileSummary{
			Profile:      profile,
			MissingNodes: []string{},
			Districts:    []*DistrictSummary{},
		},
	}
}

// foldDistrict adds one district summary to its profile.
func foldDistrict(acc *profileAccumulator, d *DistrictSummary) *profileAccumulator {
	p := acc.summary
	p.Districts = append(p.Districts, d)
	p.DistrictCount++
	p.NodeCount += d.NodeCount
	p.NodesActive += d.NodesActive
	p.NodesInactive += d.NodesInactive
	p.MissingNodes = append(p.MissingNodes, d.MissingNodes...)
	p.AvailableActiveGears += d.AvailableActiveGears
	p.GearsTotal += d.GearsTotal
	p.GearsActive += d.GearsActive
	p.DistrictCapacity += d.Capacity
	p.AvailableCapacity += d.AvailableCapacity
	p.AvailableUIDs += d.AvailableUIDs
	acc.weightedCapacitySum += d.AvgActiveCapacityPct * float64(d.NodeCount)
	return acc
}

func (acc *profileAccumulator) finish(counts map[string]*RecordCounts) *ProfileSummary {
	p := acc.summary
	if p.NodeCount > 0 {
		p.AvgActiveCapacityPct = acc.weightedCapacitySum / float64(p.NodeCount)
	}
	if len(p.Districts) > 0 {
		p.LowestActiveCapacityPct = lo.MinBy(p.Districts, func(a, b *DistrictSummary) bool {
			return a.LowestActiveCapacityPct < b.LowestActiveCapacityPct
		}).LowestActiveCapacityPct
		p.HighestActiveCapacityPct = lo.MaxBy(p.Districts, func(a, b *DistrictSummary) bool {
			return a.HighestActiveCapacityPct > b.HighestActiveCapacityPct
		}).HighestActiveCapacityPct
	}
	p.EffectiveAvailableGears = min(p.AvailableActiveGears, p.AvailableCapacity)
	sort.Strings(p.MissingNodes)

	if counts != nil {
		rc, ok := counts[p.Profile]
		if !ok {
			rc = newRecordCounts()
		}
		p.Recorded = rc
	}
	return p
}

// SummarizeProfiles rolls district summaries up by profile. The profile
// average is weighted by each district's node count. counts is optional; when
// non-nil each profile carries its persisted record tallies.
func SummarizeProfiles(districts map[string]*DistrictSummary, counts map[string]*RecordCounts) map[string]*ProfileSummary {
	ids := lo.Keys(districts)
	sort.Strings(ids)

	accs := make(map[string]*profileAccumulator)
	for _, id := range ids {
		d := districts[id]
		acc, ok := accs[d.Profile]
		if !ok {
			acc = newProfileAccumulator(d.Profile)
			accs[d.Profile] = acc
		}
		foldDistrict(acc, d)
	}

	profiles := make(map[string]*ProfileSummary, len(accs))
	for profile, acc := range accs {
		profiles[profile] = acc.finish(counts)
	}
	return profiles
}
