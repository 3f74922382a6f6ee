package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestInsertArticleDeduplicates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	rec := ArticleRecord{
		ID:             "a1",
		Title:          "Reliance Q1 results beat estimates",
		BodyText:       "Reliance Industries reported...",
		SourceName:     "MoneyControl",
		OriginURL:      "https://example.com/reliance-q1",
		URLFingerprint: "fp-1",
		ContentHash:    "hash-1",
		PublishedAt:    time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
		ScrapedAt:      time.Date(2025, 7, 1, 9, 5, 0, 0, time.UTC),
	}

	query := regexp.QuoteMeta(`
INSERT INTO articles (id, title, body_text, source_name, origin_url, url_fingerprint, content_hash, published_at, scraped_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT DO NOTHING
`)
	mock.ExpectExec(query).
		WithArgs(rec.ID, rec.Title, rec.BodyText, rec.SourceName, rec.OriginURL, rec.URLFingerprint, rec.ContentHash, rec.PublishedAt, rec.ScrapedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs(rec.ID, rec.Title, rec.BodyText, rec.SourceName, rec.OriginURL, rec.URLFingerprint, rec.ContentHash, rec.PublishedAt, rec.ScrapedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := st.InsertArticle(context.Background(), rec)
	if err != nil {
		t.Fatalf("InsertArticle: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should report a written row")
	}

	inserted, err = st.InsertArticle(context.Background(), rec)
	if err != nil {
		t.Fatalf("InsertArticle (duplicate): %v", err)
	}
	if inserted {
		t.Fatal("duplicate insert should report no written row")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertArticleValidation(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	if _, err := st.InsertArticle(context.Background(), ArticleRecord{}); err == nil {
		t.Fatal("expected error for missing id")
	}
	if _, err := st.InsertArticle(context.Background(), ArticleRecord{ID: "a1"}); err == nil {
		t.Fatal("expected error for missing hash/fingerprint")
	}
}

func TestListUnresolvedArticles(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	now := time.Now().UTC()
	query := regexp.QuoteMeta(`
SELECT id, title, body_text, source_name, origin_url, url_fingerprint, content_hash, published_at, scraped_at
FROM articles
WHERE resolved_at IS NULL
ORDER BY scraped_at ASC
LIMIT $1
`)
	rows := sqlmock.NewRows([]string{"id", "title", "body_text", "source_name", "origin_url", "url_fingerprint", "content_hash", "published_at", "scraped_at"}).
		AddRow("a1", "t1", "b1", "s", "u1", "fp1", "h1", now, now).
		AddRow("a2", "t2", "b2", "s", "u2", "fp2", "h2", now, now)
	mock.ExpectQuery(query).WithArgs(10).WillReturnRows(rows)

	got, err := st.ListUnresolvedArticles(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListUnresolvedArticles: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a1" || got[1].ID != "a2" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
