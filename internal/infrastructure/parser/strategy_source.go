package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"IdeaDigest/internal/scanner"
)

// StrategySource turns the enabled source names from config into the ordered
// list of scanners the pipeline runs.
type StrategySource struct {
	registry *scanner.Registry
	enabled  []string
	logger   *slog.Logger
}

// NewStrategySource wires scanner registry with config-defined source names.
func NewStrategySource(reg *scanner.Registry, enabled []string, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		enabled:  enabled,
		logger:   log,
	}
}

// Scanners resolves the enabled names in order. Duplicates are dropped and
// unknown names are reported together.
func (s *StrategySource) Scanners() ([]scanner.Scanner, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	var (
		resolved []scanner.Scanner
		errs     []error
		seen     = map[string]bool{}
	)
	for _, raw := range s.enabled {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		strategy, err := s.registry.Resolve(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		resolved = append(resolved, strategy)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	s.debug("resolved sources", "count", len(resolved), "names", s.enabled)
	return resolved, nil
}

// Only narrows the enabled list, e.g. from a --sources flag. An empty
// selection keeps the configured list.
func (s *StrategySource) Only(names []string) *StrategySource {
	if len(names) == 0 {
		return s
	}
	return NewStrategySource(s.registry, names, s.logger)
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
