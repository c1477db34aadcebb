package processor

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/chambridge/capacity-stats/internal/stats"
)

const manifestName = "manifest.json"

// Manifest represents the structure of manifest.json in a facts archive
type Manifest struct {
	Districts []string `json:"districts"`
	Nodes     []string `json:"nodes"`
	Users     int      `json:"users"`
}

// FactsArchive is a snapshot of node facts read from a tar.gz archive. It
// answers for the nodes listed in its manifest and fails for everything else,
// so an absent node reports as missing exactly like one that timed out.
type FactsArchive struct {
	Manifest Manifest
	facts    map[string]stats.Facts
}

// Facts returns the stored facts of host.
func (a *FactsArchive) Facts(ctx context.Context, host string) (stats.Facts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	facts, ok := a.facts[host]
	if !ok {
		return nil, fmt.Errorf("no facts for %s in archive", host)
	}
	return facts, nil
}

// Hosts lists the nodes the archive holds facts for, in manifest order.
func (a *FactsArchive) Hosts() []string {
	return lo.Filter(a.Manifest.Nodes, func(host string, _ int) bool {
		_, ok := a.facts[host]
		return ok
	})
}

// ListHosts returns Hosts, so every node in the snapshot gets polled whether
// or not a district declares it.
func (a *FactsArchive) ListHosts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.Hosts(), nil
}

// LoadFactsArchive reads manifest.json and the <host>.json entries it lists
// from a tar.gz archive. Entries not listed in the manifest are skipped.
func LoadFactsArchive(tarPath string, logger *zap.Logger) (*FactsArchive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	file, err := os.Open(tarPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open tar file: %w", err)
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	var manifest *Manifest
	entries := map[string][]byte{}

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := path.Base(header.Name)
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", header.Name, err)
		}
		if name == manifestName {
			manifest = &Manifest{}
			if err := json.Unmarshal(data, manifest); err != nil {
				return nil, fmt.Errorf("failed to parse manifest.json: %w", err)
			}
			continue
		}
		if host, ok := strings.CutSuffix(name, ".json"); ok {
			entries[host] = data
		}
	}

	if manifest == nil {
		return nil, fmt.Errorf("no manifest.json found in tar archive")
	}

	archive := &FactsArchive{Manifest: *manifest, facts: make(map[string]stats.Facts, len(manifest.Nodes))}
	for _, host := range manifest.Nodes {
		data, ok := entries[host]
		if !ok {
			logger.Warn("node listed in manifest has no facts", zap.String("node", host))
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			logger.Warn("skipping unreadable facts", zap.String("node", host), zap.Error(err))
			continue
		}
		archive.facts[host] = stats.FactsFromJSON(raw)
	}
	for host := range entries {
		if !lo.Contains(manifest.Nodes, host) {
			logger.Debug("skipping facts not listed in manifest", zap.String("node", host))
		}
	}

	logger.Info("loaded facts archive",
		zap.String("path", tarPath),
		zap.Int("nodes", len(archive.facts)),
		zap.Int("districts", len(manifest.Districts)))
	return archive, nil
}

// WriteFactsArchive writes manifest.json followed by one <host>.json entry per
// node in manifest order to a new tar.gz at tarPath.
func WriteFactsArchive(tarPath string, manifest Manifest, facts map[string]map[string]any) error {
	file, err := os.Create(tarPath)
	if err != nil {
		return fmt.Errorf("failed to create tar.gz file: %w", err)
	}
	defer file.Close()

	gzw := gzip.NewWriter(file)
	tw := tar.NewWriter(gzw)

	writeEntry := func(name string, v any) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", name, err)
		}
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(data)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		return nil
	}

	if err := writeEntry(manifestName, manifest); err != nil {
		return err
	}
	for _, host := range manifest.Nodes {
		if err := writeEntry(host+".json", facts[host]); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return nil
}
