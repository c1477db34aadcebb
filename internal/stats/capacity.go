package stats

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// CapacityAlert signals that a profile's active gear usage reached the threshold.
type CapacityAlert struct {
	Profile   string  `json:"profile" yaml:"profile" xml:"profile"`
	UsagePct  float64 `json:"usage_pct" yaml:"usage_pct" xml:"usage_pct"`
	Threshold float64 `json:"threshold" yaml:"threshold" xml:"threshold"`
}

func (a CapacityAlert) String() string {
	return fmt.Sprintf("profile %s active gear usage %.2f%% >= threshold %.2f%%", a.Profile, a.UsagePct, a.Threshold)
}

// UsagePercent returns active gears as a percentage of active plus available
// active gears. A profile with neither has no usage.
func UsagePercent(p *ProfileSummary) float64 {
	denominator := p.AvailableActiveGears + p.GearsActive
	if denominator == 0 {
		return 0
	}
	return float64(p.GearsActive) / float64(denominator) * 100
}

// ThresholdRule fires when a profile's usage percentage reaches Threshold.
type ThresholdRule struct {
	Threshold float64
}

// Evaluate classifies a single profile.
func (r ThresholdRule) Evaluate(p *ProfileSummary) (CapacityAlert, bool) {
	usage := UsagePercent(p)
	if usage >= r.Threshold {
		return CapacityAlert{Profile: p.Profile, UsagePct: usage, Threshold: r.Threshold}, true
	}
	return CapacityAlert{}, false
}

// EvaluateProfiles applies the rule to the named profile, or to every profile
// when profile is empty. An unknown profile yields no alerts. Alerts are
// ordered by profile.
func (r ThresholdRule) EvaluateProfiles(profiles map[string]*ProfileSummary, profile string) []CapacityAlert {
	targets := lo.Values(profiles)
	if profile != "" {
		targets = lo.Filter(targets, func(p *ProfileSummary, _ int) bool { return p.Profile == profile })
	}

	alerts := []CapacityAlert{}
	for _, p := range targets {
		if alert, fired := r.Evaluate(p); fired {
			alerts = append(alerts, alert)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Profile < alerts[j].Profile })
	return alerts
}
