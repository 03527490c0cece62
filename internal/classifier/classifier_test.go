package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

type fakeNicheRepo struct {
	keywords []domain.NicheKeyword
	learned  []domain.NicheKeyword
	listErr  error
}

func (f *fakeNicheRepo) ListNiches(context.Context) ([]domain.Niche, error) {
	return nil, nil
}

func (f *fakeNicheRepo) ListKeywords(context.Context) ([]domain.NicheKeyword, error) {
	return f.keywords, f.listErr
}

func (f *fakeNicheRepo) LearnKeyword(_ context.Context, nicheID int, keyword string, weight float64) error {
	f.learned = append(f.learned, domain.NicheKeyword{NicheID: nicheID, Keyword: keyword, Weight: weight})
	return nil
}

func seedKeywords() []domain.NicheKeyword {
	return []domain.NicheKeyword{
		{NicheID: 1, NicheName: "Fitness & Wellness", Keyword: "yoga", Weight: 1},
		{NicheID: 1, NicheName: "Fitness & Wellness", Keyword: "mat", Weight: 1},
		{NicheID: 1, NicheName: "Fitness & Wellness", Keyword: "exercise", Weight: 1},
		{NicheID: 2, NicheName: "Kitchen & Dining", Keyword: "mug", Weight: 1},
		{NicheID: 2, NicheName: "Kitchen & Dining", Keyword: "coffee", Weight: 1},
	}
}

func TestClassifyPicksHighestScore(t *testing.T) {
	c := New(&fakeNicheRepo{keywords: seedKeywords()}, zerolog.Nop())
	analysis, err := c.Classify(context.Background(), []string{"yoga", "mat", "purple", "coffee"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if analysis.Niche.Name != "Fitness & Wellness" {
		t.Fatalf("niche = %q", analysis.Niche.Name)
	}
	if analysis.Niche.ID != 1 {
		t.Fatalf("niche id = %d", analysis.Niche.ID)
	}
	// 2 of 3 total weight points.
	if analysis.Confidence != 0.67 {
		t.Fatalf("confidence = %v, want 0.67", analysis.Confidence)
	}
}

func TestClassifyPartialMatchesBothDirections(t *testing.T) {
	c := New(&fakeNicheRepo{keywords: seedKeywords()}, zerolog.Nop())

	// Label contains keyword.
	analysis, err := c.Classify(context.Background(), []string{"coffee mug"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if analysis.Niche.Name != "Kitchen & Dining" {
		t.Fatalf("niche = %q", analysis.Niche.Name)
	}

	// Keyword contains label.
	analysis, err = c.Classify(context.Background(), []string{"exerc"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if analysis.Niche.Name != "Fitness & Wellness" {
		t.Fatalf("niche = %q, want Fitness & Wellness", analysis.Niche.Name)
	}
}

func TestClassifyNoMatchReturnsUnknown(t *testing.T) {
	c := New(&fakeNicheRepo{keywords: seedKeywords()}, zerolog.Nop())
	analysis, err := c.Classify(context.Background(), []string{"submarine"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if analysis.Niche.Name != "Unknown" || analysis.Niche.ID != 0 {
		t.Fatalf("niche = %+v, want Unknown", analysis.Niche)
	}
	if analysis.Confidence != 0 {
		t.Fatalf("confidence = %v, want 0", analysis.Confidence)
	}
}

func TestClassifyRepositoryError(t *testing.T) {
	c := New(&fakeNicheRepo{listErr: errors.New("db down")}, zerolog.Nop())
	if _, err := c.Classify(context.Background(), []string{"yoga"}); err == nil {
		t.Fatal("expected repository error")
	}
}

func TestLearnInsertsWeightedKeywords(t *testing.T) {
	repo := &fakeNicheRepo{}
	c := New(repo, zerolog.Nop())
	if err := c.Learn(context.Background(), 2, []string{"Espresso Cup", "", "saucer"}); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if len(repo.learned) != 2 {
		t.Fatalf("learned %d keywords, want 2", len(repo.learned))
	}
	if repo.learned[0].Keyword != "espresso cup" || repo.learned[0].Weight != 2.0 {
		t.Fatalf("learned[0] = %+v", repo.learned[0])
	}
	if repo.learned[0].NicheID != 2 {
		t.Fatalf("niche id = %d", repo.learned[0].NicheID)
	}
}
