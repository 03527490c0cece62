// Package classifier maps detected image labels to a product niche using
// the weighted keyword tables. Matching is substring-based in both
// directions, so "coffee mug" matches the keyword "mug" and vice versa.
package classifier

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// learnedWeight is assigned to keywords added through user feedback. Twice
// the seed weight so corrections win future classifications quickly.
const learnedWeight = 2.0

// Classifier scores labels against the niche keyword tables.
type Classifier struct {
	niches domain.NicheRepository
	logger zerolog.Logger
}

// New builds a Classifier over the given repository.
func New(niches domain.NicheRepository, logger zerolog.Logger) *Classifier {
	return &Classifier{niches: niches, logger: logger}
}

// Classify returns the best-scoring niche for the labels with a normalized
// confidence. No keyword match yields the zero-valued Unknown niche.
func (c *Classifier) Classify(ctx context.Context, labels []string) (*domain.ImageAnalysis, error) {
	keywords, err := c.niches.ListKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("classifier: load keywords: %w", err)
	}

	type score struct {
		name  string
		total float64
	}
	scores := map[int]*score{}
	for _, label := range labels {
		l := strings.ToLower(strings.TrimSpace(label))
		if l == "" {
			continue
		}
		for _, kw := range keywords {
			k := strings.ToLower(kw.Keyword)
			if !strings.Contains(l, k) && !strings.Contains(k, l) {
				continue
			}
			s, ok := scores[kw.NicheID]
			if !ok {
				s = &score{name: kw.NicheName}
				scores[kw.NicheID] = s
			}
			s.total += kw.Weight
		}
	}

	analysis := &domain.ImageAnalysis{
		Labels: append([]string{}, labels...),
		Niche:  domain.Niche{Name: "Unknown"},
	}
	if len(scores) == 0 {
		return analysis, nil
	}

	var bestID int
	var total float64
	best := -math.MaxFloat64
	for id, s := range scores {
		total += s.total
		if s.total > best || (s.total == best && id < bestID) {
			best = s.total
			bestID = id
		}
	}
	analysis.Niche = domain.Niche{ID: bestID, Name: scores[bestID].name}
	if total > 0 {
		analysis.Confidence = math.Round(best/total*100) / 100
	}

	c.logger.Debug().
		Str("niche", analysis.Niche.Name).
		Float64("confidence", analysis.Confidence).
		Int("labels", len(labels)).
		Msg("classifier: product classified")
	return analysis, nil
}

// Learn records a user-corrected niche assignment. Each label becomes a
// keyword for the corrected niche at the learned weight; duplicates are
// skipped by the repository.
func (c *Classifier) Learn(ctx context.Context, nicheID int, labels []string) error {
	for _, label := range labels {
		l := strings.ToLower(strings.TrimSpace(label))
		if l == "" {
			continue
		}
		if err := c.niches.LearnKeyword(ctx, nicheID, l, learnedWeight); err != nil {
			return fmt.Errorf("classifier: learn keyword %q: %w", l, err)
		}
	}
	return nil
}
