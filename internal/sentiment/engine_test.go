package sentiment

import (
	"context"
	"errors"
	"testing"

	"github.com/rish-kun/alphastream/internal/store"
)

type stubAnalyzer struct {
	name     string
	judgment Judgment
	err      error
	calls    int
}

func (s *stubAnalyzer) Name() string { return s.name }

func (s *stubAnalyzer) Infer(_ context.Context, _ store.ArticleRecord, _ string) (Judgment, error) {
	s.calls++
	if s.err != nil {
		return Judgment{}, s.err
	}
	return s.judgment, nil
}

type memSink struct {
	sentiments []store.SentimentRecord
	skipped    []store.SkippedPairRecord
	failWrites bool
}

func (m *memSink) InsertSentiment(_ context.Context, rec store.SentimentRecord) (bool, error) {
	if m.failWrites {
		return false, errors.New("write failed")
	}
	for _, existing := range m.sentiments {
		if existing.ArticleID == rec.ArticleID && existing.Ticker == rec.Ticker && existing.ModelUsed == rec.ModelUsed {
			return false, nil
		}
	}
	m.sentiments = append(m.sentiments, rec)
	return true, nil
}

func (m *memSink) InsertSkippedPair(_ context.Context, rec store.SkippedPairRecord) (bool, error) {
	m.skipped = append(m.skipped, rec)
	return true, nil
}

func goodJudgment() Judgment {
	return Judgment{SentimentScore: 0.4, Confidence: 0.82, ImpactTimeline: ImpactShortTerm, Explanation: "positive"}
}

func TestEnginePrimarySucceeds(t *testing.T) {
	primary := &stubAnalyzer{name: "primary-model", judgment: goodJudgment()}
	secondary := &stubAnalyzer{name: "secondary-model", judgment: goodJudgment()}
	sink := &memSink{}
	e := NewEngine([]Analyzer{primary, secondary}, LexiconClassifier{}, sink, nil)

	rec, err := e.Process(context.Background(), testArticle(), "RELIANCE")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.ModelUsed != "primary-model" {
		t.Errorf("model_used = %q, want primary-model", rec.ModelUsed)
	}
	if secondary.calls != 0 {
		t.Error("secondary should not run when primary succeeds")
	}
	if len(sink.sentiments) != 1 {
		t.Fatalf("expected exactly one stored record, got %d", len(sink.sentiments))
	}
}

func TestEngineFallsBackToLocalOnRateLimit(t *testing.T) {
	primary := &stubAnalyzer{name: "primary-model", err: ErrRateLimited}
	secondary := &stubAnalyzer{name: "secondary-model", err: ErrRateLimited}
	sink := &memSink{}
	e := NewEngine([]Analyzer{primary, secondary}, LexiconClassifier{}, sink, nil)

	rec, err := e.Process(context.Background(), testArticle(), "RELIANCE")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.ModelUsed != store.ModelLocalFallback {
		t.Errorf("model_used = %q, want %s", rec.ModelUsed, store.ModelLocalFallback)
	}
	if rec.Confidence >= 0.6 {
		t.Errorf("local fallback confidence = %v, want < 0.6", rec.Confidence)
	}
	if len(sink.skipped) != 0 {
		t.Error("rate-limited pair should not be skipped")
	}
}

func TestEngineDefersWhenNoKeysAnywhere(t *testing.T) {
	primary := &stubAnalyzer{name: "primary-model", err: ErrNoKeyAvailable}
	secondary := &stubAnalyzer{name: "secondary-model", err: ErrNoKeyAvailable}
	sink := &memSink{}
	e := NewEngine([]Analyzer{primary, secondary}, LexiconClassifier{}, sink, nil)

	_, err := e.Process(context.Background(), testArticle(), "RELIANCE")
	if !errors.Is(err, ErrNoKeyAvailable) {
		t.Fatalf("expected deferral via ErrNoKeyAvailable, got %v", err)
	}
	if len(sink.sentiments) != 0 || len(sink.skipped) != 0 {
		t.Error("deferred pair must not persist anything")
	}
}

func TestEngineSchemaViolationFallsThrough(t *testing.T) {
	primary := &stubAnalyzer{name: "primary-model", err: ErrSchemaValidation}
	secondary := &stubAnalyzer{name: "secondary-model", judgment: goodJudgment()}
	sink := &memSink{}
	e := NewEngine([]Analyzer{primary, secondary}, LexiconClassifier{}, sink, nil)

	rec, err := e.Process(context.Background(), testArticle(), "RELIANCE")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.ModelUsed != "secondary-model" {
		t.Errorf("model_used = %q, want secondary-model", rec.ModelUsed)
	}
}

func TestEngineRecordsSkipWhenAllPathsFail(t *testing.T) {
	primary := &stubAnalyzer{name: "primary-model", err: ErrSchemaValidation}
	local := &stubAnalyzer{name: store.ModelLocalFallback, err: errors.New("classifier unavailable")}
	sink := &memSink{}
	e := NewEngine([]Analyzer{primary}, local, sink, nil)

	_, err := e.Process(context.Background(), testArticle(), "INFY")
	if !errors.Is(err, ErrAllPathsExhausted) {
		t.Fatalf("expected ErrAllPathsExhausted, got %v", err)
	}
	if len(sink.sentiments) != 0 {
		t.Error("no sentiment may be fabricated for an exhausted pair")
	}
	if len(sink.skipped) != 1 || sink.skipped[0].Ticker != "INFY" {
		t.Fatalf("skip not recorded: %+v", sink.skipped)
	}
}

func TestEngineReplaySingleRow(t *testing.T) {
	primary := &stubAnalyzer{name: "primary-model", judgment: goodJudgment()}
	sink := &memSink{}
	e := NewEngine([]Analyzer{primary}, LexiconClassifier{}, sink, nil)

	for i := 0; i < 3; i++ {
		if _, err := e.Process(context.Background(), testArticle(), "RELIANCE"); err != nil {
			t.Fatalf("Process round %d: %v", i, err)
		}
	}
	if len(sink.sentiments) != 1 {
		t.Fatalf("replays must collapse to one row, got %d", len(sink.sentiments))
	}
}

func TestLexiconClassifierDirection(t *testing.T) {
	lex := LexiconClassifier{}

	pos, err := lex.Infer(context.Background(), store.ArticleRecord{
		Title:    "TCS beats estimates with record profit",
		BodyText: "The company reported strong growth and announced a dividend.",
	}, "TCS")
	if err != nil {
		t.Fatal(err)
	}
	if pos.SentimentScore <= 0 {
		t.Errorf("positive text scored %v", pos.SentimentScore)
	}
	if pos.Confidence > 0.5 {
		t.Errorf("lexicon confidence %v exceeds cap", pos.Confidence)
	}

	neg, err := lex.Infer(context.Background(), store.ArticleRecord{
		Title:    "Vedanta shares plunge after penalty",
		BodyText: "The stock fell sharply as losses mounted and a probe widened.",
	}, "VEDL")
	if err != nil {
		t.Fatal(err)
	}
	if neg.SentimentScore >= 0 {
		t.Errorf("negative text scored %v", neg.SentimentScore)
	}
	if err := neg.Validate(); err != nil {
		t.Errorf("lexicon judgment must satisfy the contract: %v", err)
	}
}
