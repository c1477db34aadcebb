package stats

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	// ErrNoCollector is returned when an engine has no node collector.
	ErrNoCollector = errors.New("stats: no node collector configured")
	// ErrNoDistricts is returned when an engine has no district lister.
	ErrNoDistricts = errors.New("stats: no district lister configured")
	// ErrNoRecords is returned when record counting is requested without a record source.
	ErrNoRecords = errors.New("stats: no record source configured")
)

// NodeCollector gathers facts from the given hosts, waiting at most wait.
// Hosts that do not answer in time are absent from the result.
type NodeCollector interface {
	Collect(ctx context.Context, hosts []string, wait time.Duration) (map[string]NodeEntry, error)
}

// DistrictLister returns every district definition keyed by id.
type DistrictLister interface {
	ListDistricts(ctx context.Context) (map[string]DistrictEntry, error)
}

// RecordStreamer walks persisted users in batches of at most batchSize.
type RecordStreamer interface {
	StreamUsers(ctx context.Context, batchSize int, fn func([]UserRecord) error) error
}

// HostLister names nodes known outside district membership, such as nodes
// hosting gears or nodes present in a facts snapshot. Polling them is what
// fills the undistricted buckets.
type HostLister interface {
	ListHosts(ctx context.Context) ([]string, error)
}

// Options configure a single pass.
type Options struct {
	Wait         time.Duration
	CountRecords bool
	BatchSize    int
	ExtraNodes   []string
}

// Results is everything one pass produced. Field names are part of the
// rendered output and must stay stable.
type Results struct {
	Timings           Timings                     `json:"timings" yaml:"timings"`
	Nodes             map[string]NodeEntry        `json:"node_entries" yaml:"node_entries"`
	Districts         map[string]DistrictEntry    `json:"district_entries" yaml:"district_entries"`
	DistrictSummaries map[string]*DistrictSummary `json:"district_summaries" yaml:"district_summaries"`
	ProfileSummaries  map[string]*ProfileSummary  `json:"profile_summaries" yaml:"profile_summaries"`
	CountAll          *GlobalCounts               `json:"count_all,omitempty" yaml:"count_all,omitempty"`
	CountByProfile    map[string]*RecordCounts    `json:"count_by_profile,omitempty" yaml:"count_by_profile,omitempty"`
	CountByUser       map[string]*UserCount       `json:"count_by_user,omitempty" yaml:"count_by_user,omitempty"`
}

// Engine runs collection and aggregation passes.
type Engine struct {
	collector NodeCollector
	districts DistrictLister
	records   RecordStreamer
	hosts     []HostLister
	logger    *zap.Logger
}

// NewEngine wires an engine. records may be nil when record counting is never requested.
func NewEngine(collector NodeCollector, districts DistrictLister, records RecordStreamer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		collector: collector,
		districts: districts,
		records:   records,
		logger:    logger,
	}
}

// WithHostListers adds sources of hosts to poll besides district members.
func (e *Engine) WithHostListers(listers ...HostLister) *Engine {
	e.hosts = append(e.hosts, listers...)
	return e
}

func (e *Engine) knownHosts(ctx context.Context) ([]string, error) {
	var hosts []string
	for _, l := range e.hosts {
		found, err := l.ListHosts(ctx)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, found...)
	}
	return hosts, nil
}

// NodeHosts lists every host to poll: all declared district members plus
// extra, de-duplicated and sorted.
func NodeHosts(districts map[string]DistrictEntry, extra []string) []string {
	hosts := make([]string, 0, len(extra))
	for _, d := range districts {
		hosts = append(hosts, lo.Keys(d.Members)...)
	}
	hosts = lo.Uniq(append(hosts, extra...))
	hosts = lo.Compact(hosts)
	sort.Strings(hosts)
	return hosts
}

// Run performs one collection and aggregation pass. Nodes that fail to answer
// are reported as missing, never as errors; a failing collaborator aborts the
// pass with its error.
func (e *Engine) Run(ctx context.Context, opts Options) (*Results, error) {
	if e.collector == nil {
		return nil, ErrNoCollector
	}
	if e.districts == nil {
		return nil, ErrNoDistricts
	}
	if opts.CountRecords && e.records == nil {
		return nil, ErrNoRecords
	}

	res := &Results{Timings: Timings{}}

	districts, err := TimeStep(res.Timings, "get_district_entries", func() (map[string]DistrictEntry, error) {
		return e.districts.ListDistricts(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list districts: %w", err)
	}
	res.Districts = districts

	extra := slices.Clone(opts.ExtraNodes)
	if len(e.hosts) > 0 {
		known, err := TimeStep(res.Timings, "get_known_hosts", func() ([]string, error) {
			return e.knownHosts(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list known hosts: %w", err)
		}
		extra = append(extra, known...)
	}

	hosts := NodeHosts(districts, extra)
	nodes, err := TimeStep(res.Timings, "get_node_entries", func() (map[string]NodeEntry, error) {
		return e.collector.Collect(ctx, hosts, opts.Wait)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect node facts: %w", err)
	}
	res.Nodes = nodes
	e.logger.Info("collected node facts",
		zap.Int("polled", len(hosts)),
		zap.Int("answered", len(nodes)),
		zap.Duration("wait", opts.Wait))

	if opts.CountRecords {
		counter := NewRecordCounter()
		_, err := TimeStep(res.Timings, "count_all", func() (struct{}, error) {
			return struct{}{}, e.records.StreamUsers(ctx, opts.BatchSize, func(batch []UserRecord) error {
				counter.Add(batch...)
				return nil
			})
		})
		if err != nil {
			return nil, fmt.Errorf("failed to count persisted records: %w", err)
		}
		res.CountAll, res.CountByProfile, res.CountByUser = counter.Result()
	}

	res.DistrictSummaries, _ = TimeStep(res.Timings, "summarize_districts", func() (map[string]*DistrictSummary, error) {
		return SummarizeDistricts(res.Districts, res.Nodes), nil
	})
	res.ProfileSummaries, _ = TimeStep(res.Timings, "summarize_profiles", func() (map[string]*ProfileSummary, error) {
		return SummarizeProfiles(res.DistrictSummaries, res.CountByProfile), nil
	})

	e.logger.Debug("aggregation pass complete",
		zap.Int("districts", len(res.DistrictSummaries)),
		zap.Int("profiles", len(res.ProfileSummaries)))

	return res, nil
}
