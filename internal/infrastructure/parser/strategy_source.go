package parser

import (
	"context"
	"fmt"
	"log/slog"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/scanner"
)

// StrategySource implements CandidateSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	logger   *slog.Logger
}

var _ ports.CandidateSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		logger:   log,
	}
}

// Fetch iterates over configured sites and executes their scanners. Entries
// sharing a link are reported once, first occurrence wins.
func (s *StrategySource) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("fetch candidates", "sites", len(s.sites))

	seen := map[string]struct{}{}
	var aggregated []domain.Candidate
	for _, site := range s.sites {
		s.debug("process site", "site", site.Name, "scanner", site.Scanner, "feeds", len(site.Feeds))
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}

		req := scanner.Request{
			SiteName: site.Name,
			Options:  site.Options,
			Feeds:    toScannerFeeds(site.Feeds),
		}

		results, err := strategy.Scan(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("scan site %s: %w", site.Name, err)
		}

		for _, candidate := range results {
			if _, dup := seen[candidate.Link]; dup {
				continue
			}
			seen[candidate.Link] = struct{}{}
			if candidate.Source == "" {
				candidate.Source = site.Name
			}
			aggregated = append(aggregated, candidate)
		}
		s.debug("site produced candidates", "site", site.Name, "count", len(results))
	}

	s.debug("strategy source done", "total_candidates", len(aggregated))
	return aggregated, nil
}

func toScannerFeeds(cfg []config.FeedConfig) []scanner.Feed {
	feeds := make([]scanner.Feed, 0, len(cfg))
	for _, f := range cfg {
		feeds = append(feeds, scanner.Feed{
			Name: f.Name,
			URL:  f.URL,
		})
	}
	return feeds
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
