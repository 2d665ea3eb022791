package database

type PostRepository interface {
	UpsertPost(p StoredPost) error
	GetRecentPosts(account string, limit int) ([]StoredPost, error)
	GetPostCount() (int, error)
	GetAccountPostCount(account string) (int, error)

	UpsertPrice(p PricePoint) error
	GetPriceSeries(series string, days int) ([]PricePoint, error)
}

type ScoreRepository interface {
	UpsertScore(s AccountScore) error
	GetScores(scoreDate string) ([]AccountScore, error)
	GetScoreHistory(account string, days int) ([]AccountScore, error)
	GetDailyAverages(days int) (map[string]float64, error)

	StoreCorrelationRun(r CorrelationRun) error
	GetLatestCorrelationRuns(runDate string) ([]CorrelationRun, error)

	StoreReport(r Report) (int64, error)
	MarkReportSent(id int64) error
	GetLatestReport() (*Report, error)
}
