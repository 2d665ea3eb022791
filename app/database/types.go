package database

import (
	"time"
)

// StoredPost is a collected post as persisted per account.
type StoredPost struct {
	Account     string
	PostID      string
	Text        string
	CreatedAt   time.Time
	Replies     int
	Reshares    int
	Likes       int
	URL         string
	Source      string
	CollectedAt time.Time
}

// AccountScore is one account's aggregated sentiment for one day.
// ScoreDate is the UTC calendar day in YYYY-MM-DD form.
type AccountScore struct {
	ID            int64
	Account       string
	ScoreDate     string
	AvgSentiment  float64
	TotalPosts    int
	PositiveCount int
	NegativeCount int
	NeutralCount  int
	Label         string
	CreatedAt     time.Time
}

// PricePoint is one day's closing value of a tracked price series.
type PricePoint struct {
	Series    string
	PriceDate string
	Value     float64
}

// CorrelationRun is one persisted correlation result.
type CorrelationRun struct {
	ID          int64
	RunDate     string
	Series      string
	Coefficient float64
	Samples     int
	Strength    string
	Valid       bool
	CreatedAt   time.Time
}

// Report is a rendered daily report.
type Report struct {
	ID        int64
	RunDate   string
	HTML      string
	Sent      bool
	CreatedAt time.Time
}
