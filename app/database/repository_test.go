package database

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func storedPost(account, id string, createdAt time.Time) StoredPost {
	return StoredPost{
		Account:     account,
		PostID:      id,
		Text:        "text of " + id,
		CreatedAt:   createdAt,
		Replies:     1,
		Reshares:    2,
		Likes:       3,
		URL:         "https://example.com/" + id,
		Source:      "federated",
		CollectedAt: time.Now().UTC(),
	}
}

func TestUpsertPostIsIdempotent(t *testing.T) {
	repo := NewPostRepository(newTestDB(t))
	now := time.Now().UTC().Truncate(time.Second)

	p := storedPost("tester", "1", now)
	if err := repo.UpsertPost(p); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	p.Likes = 99
	p.Text = "edited"
	if err := repo.UpsertPost(p); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	count, err := repo.GetAccountPostCount("tester")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 row after re-upsert, got %d", count)
	}

	posts, err := repo.GetRecentPosts("tester", 10)
	if err != nil {
		t.Fatalf("GetRecentPosts failed: %v", err)
	}
	if posts[0].Likes != 99 || posts[0].Text != "edited" {
		t.Errorf("Mutable columns not refreshed: %+v", posts[0])
	}
}

func TestGetRecentPostsOrderAndLimit(t *testing.T) {
	repo := NewPostRepository(newTestDB(t))
	now := time.Now().UTC().Truncate(time.Second)

	for i, id := range []string{"a", "b", "c"} {
		if err := repo.UpsertPost(storedPost("tester", id, now.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	posts, err := repo.GetRecentPosts("tester", 2)
	if err != nil {
		t.Fatalf("GetRecentPosts failed: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("Expected 2 posts, got %d", len(posts))
	}
	if posts[0].PostID != "c" || posts[1].PostID != "b" {
		t.Errorf("Expected newest first, got %s, %s", posts[0].PostID, posts[1].PostID)
	}
}

func TestPriceSeriesRoundTrip(t *testing.T) {
	repo := NewPostRepository(newTestDB(t))

	for _, p := range []PricePoint{
		{Series: "oil", PriceDate: "2024-06-02", Value: 81.5},
		{Series: "oil", PriceDate: "2024-06-01", Value: 80.0},
		{Series: "electricity", PriceDate: "2024-06-01", Value: 42.0},
	} {
		if err := repo.UpsertPrice(p); err != nil {
			t.Fatalf("UpsertPrice failed: %v", err)
		}
	}

	// Same-day upsert replaces the value.
	if err := repo.UpsertPrice(PricePoint{Series: "oil", PriceDate: "2024-06-01", Value: 80.5}); err != nil {
		t.Fatalf("UpsertPrice failed: %v", err)
	}

	points, err := repo.GetPriceSeries("oil", 30)
	if err != nil {
		t.Fatalf("GetPriceSeries failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("Expected 2 oil points, got %d", len(points))
	}
	if points[0].PriceDate != "2024-06-01" || points[0].Value != 80.5 {
		t.Errorf("Expected updated earliest point first, got %+v", points[0])
	}
}

func TestScoreUpsertAndHistory(t *testing.T) {
	repo := NewScoreRepository(newTestDB(t))

	score := AccountScore{
		Account:       "tester",
		ScoreDate:     "2024-06-01",
		AvgSentiment:  0.25,
		TotalPosts:    10,
		PositiveCount: 6,
		NegativeCount: 1,
		NeutralCount:  3,
		Label:         "positive",
	}
	if err := repo.UpsertScore(score); err != nil {
		t.Fatalf("UpsertScore failed: %v", err)
	}

	// A later run of the same day wins.
	score.AvgSentiment = -0.3
	score.Label = "negative"
	if err := repo.UpsertScore(score); err != nil {
		t.Fatalf("UpsertScore failed: %v", err)
	}

	score.ScoreDate = "2024-06-02"
	score.AvgSentiment = 0.1
	if err := repo.UpsertScore(score); err != nil {
		t.Fatalf("UpsertScore failed: %v", err)
	}

	history, err := repo.GetScoreHistory("tester", 30)
	if err != nil {
		t.Fatalf("GetScoreHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 days of history, got %d", len(history))
	}
	if history[0].ScoreDate != "2024-06-01" || history[0].AvgSentiment != -0.3 {
		t.Errorf("Expected replaced day first, got %+v", history[0])
	}

	day, err := repo.GetScores("2024-06-02")
	if err != nil {
		t.Fatalf("GetScores failed: %v", err)
	}
	if len(day) != 1 || day[0].AvgSentiment != 0.1 {
		t.Errorf("Unexpected day scores: %+v", day)
	}
}

func TestGetDailyAverages(t *testing.T) {
	repo := NewScoreRepository(newTestDB(t))

	for _, s := range []AccountScore{
		{Account: "one", ScoreDate: "2024-06-01", AvgSentiment: 0.2, Label: "positive"},
		{Account: "two", ScoreDate: "2024-06-01", AvgSentiment: 0.4, Label: "positive"},
		{Account: "one", ScoreDate: "2024-06-02", AvgSentiment: -0.1, Label: "negative"},
	} {
		if err := repo.UpsertScore(s); err != nil {
			t.Fatalf("UpsertScore failed: %v", err)
		}
	}

	averages, err := repo.GetDailyAverages(30)
	if err != nil {
		t.Fatalf("GetDailyAverages failed: %v", err)
	}
	if len(averages) != 2 {
		t.Fatalf("Expected 2 days, got %d", len(averages))
	}
	if averages["2024-06-01"] != 0.3 {
		t.Errorf("Expected 0.3 average for June 1, got %f", averages["2024-06-01"])
	}
}

func TestCorrelationRunRoundTrip(t *testing.T) {
	repo := NewScoreRepository(newTestDB(t))

	run := CorrelationRun{
		RunDate:     "2024-06-02",
		Series:      "oil",
		Coefficient: 0.82,
		Samples:     14,
		Strength:    "strong",
		Valid:       true,
	}
	if err := repo.StoreCorrelationRun(run); err != nil {
		t.Fatalf("StoreCorrelationRun failed: %v", err)
	}

	runs, err := repo.GetLatestCorrelationRuns("2024-06-02")
	if err != nil {
		t.Fatalf("GetLatestCorrelationRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].Coefficient != 0.82 || !runs[0].Valid || runs[0].Strength != "strong" {
		t.Errorf("Round trip mismatch: %+v", runs[0])
	}
}

func TestReportLifecycle(t *testing.T) {
	repo := NewScoreRepository(newTestDB(t))

	latest, err := repo.GetLatestReport()
	if err != nil {
		t.Fatalf("GetLatestReport failed: %v", err)
	}
	if latest != nil {
		t.Fatal("Expected no report in a fresh database")
	}

	id, err := repo.StoreReport(Report{RunDate: "2024-06-02", HTML: "<html>r1</html>"})
	if err != nil {
		t.Fatalf("StoreReport failed: %v", err)
	}
	if _, err := repo.StoreReport(Report{RunDate: "2024-06-03", HTML: "<html>r2</html>"}); err != nil {
		t.Fatalf("StoreReport failed: %v", err)
	}

	if err := repo.MarkReportSent(id); err != nil {
		t.Fatalf("MarkReportSent failed: %v", err)
	}

	latest, err = repo.GetLatestReport()
	if err != nil {
		t.Fatalf("GetLatestReport failed: %v", err)
	}
	if latest == nil || latest.RunDate != "2024-06-03" {
		t.Errorf("Expected the newest report, got %+v", latest)
	}
	if latest.Sent {
		t.Error("Second report must not inherit the sent flag")
	}
}
