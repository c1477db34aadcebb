package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"

	"github.com/chambridge/capacity-stats/internal/stats"
)

func pct(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}

func renderText(w io.Writer, res *stats.Results) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "PROFILE SUMMARIES")
	fmt.Fprintln(tw, "PROFILE\tDISTRICTS\tNODES\tMISSING\tTOTAL GEARS\tACTIVE GEARS\tAVAIL ACTIVE\tEFFECTIVE AVAIL\tUSAGE %\tMIN %\tAVG %\tMAX %")
	for _, p := range sortedValues(res.ProfileSummaries) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\n",
			p.Profile, p.DistrictCount, p.NodeCount, len(p.MissingNodes),
			p.GearsTotal, p.GearsActive, p.AvailableActiveGears, p.EffectiveAvailableGears,
			pct(stats.UsagePercent(p)),
			pct(p.LowestActiveCapacityPct), pct(p.AvgActiveCapacityPct), pct(p.HighestActiveCapacityPct))
	}
	fmt.Fprintln(tw)

	districts := orderedDistricts(res.DistrictSummaries)
	fmt.Fprintln(tw, "DISTRICT SUMMARIES")
	fmt.Fprintln(tw, "PROFILE\tDISTRICT\tNODES\tACTIVE\tINACTIVE\tTOTAL GEARS\tACTIVE GEARS\tAVAIL ACTIVE\tAVAIL CAPACITY\tEFFECTIVE AVAIL\tAVG %")
	for _, d := range districts {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			d.Profile, d.Name, d.NodeCount, d.NodesActive, d.NodesInactive,
			d.GearsTotal, d.GearsActive, d.AvailableActiveGears, d.AvailableCapacity,
			d.EffectiveAvailableGears, pct(d.AvgActiveCapacityPct))
	}

	missing := lo.Filter(districts, func(d *stats.DistrictSummary, _ int) bool { return len(d.MissingNodes) > 0 })
	if len(missing) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "MISSING NODES")
		for _, d := range missing {
			fmt.Fprintf(tw, "%s\t%s\n", d.Name, strings.Join(d.MissingNodes, " "))
		}
	}

	if res.CountAll != nil {
		c := res.CountAll
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "RECORDED")
		fmt.Fprintf(tw, "applications\t%d\n", c.Apps)
		fmt.Fprintf(tw, "gears\t%d\n", c.Gears)
		fmt.Fprintf(tw, "users\t%d\n", len(res.CountByUser))
		for _, name := range sortedKeys(c.CartridgesShort) {
			fmt.Fprintf(tw, "cartridge %s\t%d\n", name, c.CartridgesShort[name])
		}
		apps := lo.Keys(c.UsersWithNumApps)
		sort.Ints(apps)
		for _, n := range apps {
			fmt.Fprintf(tw, "users with %d apps\t%d\n", n, c.UsersWithNumApps[n])
		}
	}

	if len(res.Timings) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "TIMINGS")
		for _, step := range sortedKeys(res.Timings) {
			fmt.Fprintf(tw, "%s\t%.3fs\n", step, res.Timings[step])
		}
	}

	return tw.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

var tsvHeader = []string{
	"profile", "district_uuid", "district_name", "nodes_count", "nodes_active", "nodes_inactive",
	"total_gears", "total_active_gears", "available_active_gears", "dist_avail_capacity",
	"dist_avail_uids", "effective_available_gears", "lowest_active_capacity_pct",
	"avg_active_capacity_pct", "highest_active_capacity_pct", "missing_nodes",
}

// renderTSV writes one row per district summary.
func renderTSV(w io.Writer, res *stats.Results) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write(tsvHeader); err != nil {
		return fmt.Errorf("failed to write tsv header: %w", err)
	}
	for _, d := range orderedDistricts(res.DistrictSummaries) {
		record := []string{
			d.Profile,
			d.ID,
			d.Name,
			strconv.Itoa(d.NodeCount),
			strconv.Itoa(d.NodesActive),
			strconv.Itoa(d.NodesInactive),
			strconv.Itoa(d.GearsTotal),
			strconv.Itoa(d.GearsActive),
			strconv.Itoa(d.AvailableActiveGears),
			strconv.Itoa(d.AvailableCapacity),
			strconv.Itoa(d.AvailableUIDs),
			strconv.Itoa(d.EffectiveAvailableGears),
			pct(d.LowestActiveCapacityPct),
			pct(d.AvgActiveCapacityPct),
			pct(d.HighestActiveCapacityPct),
			strings.Join(d.MissingNodes, ","),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write tsv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
