package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chambridge/capacity-stats/internal/stats"
)

const defaultParallelism = 32

// FactsClient fetches the raw fact set of one node.
type FactsClient interface {
	Facts(ctx context.Context, host string) (stats.Facts, error)
}

// HTTPFactsClient reads facts from a JSON endpoint served by every node.
type HTTPFactsClient struct {
	Client *http.Client
	Scheme string
	Port   int
	Path   string
}

func NewHTTPFactsClient(port int, path string) *HTTPFactsClient {
	return &HTTPFactsClient{
		Client: &http.Client{},
		Scheme: "http",
		Port:   port,
		Path:   path,
	}
}

func (c *HTTPFactsClient) url(host string) string {
	addr := host
	if c.Port > 0 {
		addr = net.JoinHostPort(host, strconv.Itoa(c.Port))
	}
	return c.Scheme + "://" + addr + c.Path
}

func (c *HTTPFactsClient) Facts(ctx context.Context, host string) (stats.Facts, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(host), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build facts request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request facts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("facts endpoint returned %s", resp.Status)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode facts: %w", err)
	}
	return stats.FactsFromJSON(raw), nil
}

// Collector polls many nodes concurrently and keeps whichever answer before
// the deadline.
type Collector struct {
	client      FactsClient
	parallelism int
	logger      *zap.Logger
}

func New(client FactsClient, parallelism int, logger *zap.Logger) *Collector {
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{client: client, parallelism: parallelism, logger: logger}
}

// Collect asks every host for its facts, waiting at most wait overall.
// A host that errors or misses the deadline is left out of the result; only
// a cancelled parent context fails the call.
func (c *Collector) Collect(ctx context.Context, hosts []string, wait time.Duration) (map[string]stats.NodeEntry, error) {
	if c.client == nil {
		return nil, errors.New("collector: no facts client configured")
	}

	waitCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	// one slot per host, so goroutines never share a map
	results := make([]*stats.NodeEntry, len(hosts))

	eg := &errgroup.Group{}
	eg.SetLimit(c.parallelism)
	for i, host := range hosts {
		eg.Go(func() error {
			if waitCtx.Err() != nil {
				return nil
			}
			facts, err := c.client.Facts(waitCtx, host)
			if err != nil {
				c.logger.Debug("node did not answer",
					zap.String("node", host),
					zap.Error(err))
				return nil
			}
			node := stats.NodeFromFacts(host, facts)
			results[i] = &node
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to collect node facts: %w", err)
	}

	nodes := make(map[string]stats.NodeEntry, len(hosts))
	for _, n := range results {
		if n != nil {
			nodes[n.ID] = *n
		}
	}
	return nodes, nil
}
