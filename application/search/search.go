// Package search runs the conjunctive filter queries over one
// partition and derives content snippets around free-text matches.
package search

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/DigitalHistory-Lund/ToK-Reader/application/ports"
	"github.com/DigitalHistory-Lund/ToK-Reader/domain/speech"
	"github.com/DigitalHistory-Lund/ToK-Reader/infrastructure/config"
)

// Service executes searches against pinned partitions.
type Service struct {
	source ports.PartitionSource
	logger *zap.Logger

	mu         sync.RWMutex
	maxRows    int
	snippetLen int
}

// NewService creates a search service with the given runtime limits.
func NewService(source ports.PartitionSource, limits config.Limits, logger *zap.Logger) *Service {
	return &Service{
		source:     source,
		logger:     logger,
		maxRows:    limits.SearchMaxRows,
		snippetLen: limits.SnippetContextLen,
	}
}

// UpdateLimits applies reloaded runtime limits.
func (s *Service) UpdateLimits(limits config.Limits) {
	s.mu.Lock()
	s.maxRows = limits.SearchMaxRows
	s.snippetLen = limits.SnippetContextLen
	s.mu.Unlock()
}

func (s *Service) limits() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxRows, s.snippetLen
}

// Search runs the criteria against the year's partition. Results come
// back in (date, id) ascending order, capped at the configured row
// limit, each carrying a snippet when a free-text query was given.
func (s *Service) Search(ctx context.Context, c speech.SearchCriteria) ([]speech.SearchResult, error) {
	maxRows, snippetLen := s.limits()

	src, release, err := s.source.Acquire(ctx, c.Year)
	if err != nil {
		return nil, err
	}
	defer release()

	records, err := src.Search(ctx, c, maxRows)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(c.Query)
	results := make([]speech.SearchResult, len(records))
	for i, r := range records {
		results[i] = speech.SearchResult{Record: r}
		if query != "" {
			results[i].Snippet = Snippet(r.Content, query, snippetLen)
		}
	}

	s.logger.Debug("Search completed",
		zap.Int("year", c.Year),
		zap.String("query", query),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// Snippet extracts a window of contextLen runes on each side of the
// first case-insensitive occurrence of the full query phrase, with
// ellipses on whichever side is cut. When the exact phrase does not
// occur (tokens matched non-contiguously) the snippet degrades to a
// plain truncation of the content from its start.
func Snippet(content, query string, contextLen int) string {
	runes := []rune(content)
	lowered := make([]rune, len(runes))
	for i, r := range runes {
		lowered[i] = unicode.ToLower(r)
	}
	phrase := []rune(strings.ToLower(strings.TrimSpace(query)))

	idx := runeIndex(lowered, phrase)
	if idx < 0 {
		limit := 2 * contextLen
		if len(runes) <= limit {
			return content
		}
		return string(runes[:limit]) + "..."
	}

	start := idx - contextLen
	if start < 0 {
		start = 0
	}
	end := idx + len(phrase) + contextLen
	if end > len(runes) {
		end = len(runes)
	}

	out := string(runes[start:end])
	if start > 0 {
		out = "..." + out
	}
	if end < len(runes) {
		out = out + "..."
	}
	return out
}

// runeIndex finds the first occurrence of needle in haystack, both
// already lower-cased, returning a rune offset.
func runeIndex(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
