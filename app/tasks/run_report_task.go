package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/featherwatch/featherwatch/app/accounts"
	"github.com/featherwatch/featherwatch/app/correlation"
	"github.com/featherwatch/featherwatch/app/database"
	"github.com/featherwatch/featherwatch/app/post"
	"github.com/featherwatch/featherwatch/app/report"
	"github.com/featherwatch/featherwatch/app/sentiment"
)

// ReportMailer delivers the rendered report. A nil mailer disables
// delivery; the report is still stored.
type ReportMailer interface {
	SendReport(subject, html string) error
	SendErrorNotification(subject, detail string) error
}

const (
	SeriesOil         = "oil"
	SeriesElectricity = "electricity"
)

// PriceSeries are the tracked price series. Each one correlates
// against the sentiment of the keyword bucket with the same name.
var PriceSeries = []string{SeriesOil, SeriesElectricity}

const historyDays = 30

// recentScanLimit caps the stored posts rescanned per account when
// rebuilding the keyword buckets and hashtag counts for a report.
const recentScanLimit = 500

// RunReportTask correlates each keyword bucket's daily sentiment
// against its price series, renders the daily report and delivers it.
type RunReportTask struct {
	Task
	accountList    []accounts.Account
	analyzer       *sentiment.Analyzer
	postRepo       database.PostRepository
	scoreRepo      database.ScoreRepository
	mailer         ReportMailer
	shiftThreshold float64
	now            func() time.Time
}

func NewRunReportTask(accountList []accounts.Account, analyzer *sentiment.Analyzer,
	postRepo database.PostRepository, scoreRepo database.ScoreRepository,
	mailer ReportMailer, shiftThreshold float64) *RunReportTask {
	return &RunReportTask{
		Task:           NewTask(TaskTypeRunReport, ""),
		accountList:    accountList,
		analyzer:       analyzer,
		postRepo:       postRepo,
		scoreRepo:      scoreRepo,
		mailer:         mailer,
		shiftThreshold: shiftThreshold,
		now:            time.Now,
	}
}

func (t *RunReportTask) Execute(ctx context.Context) error {
	now := t.now().UTC()
	runDate := now.Format("2006-01-02")

	scores, err := t.scoreRepo.GetScores(runDate)
	if err != nil {
		return t.fail(fmt.Errorf("failed to load scores: %w", err))
	}

	averages, err := t.scoreRepo.GetDailyAverages(historyDays)
	if err != nil {
		return t.fail(fmt.Errorf("failed to load daily averages: %w", err))
	}
	overallSeries := averagesToSeries(averages)

	batches := t.accountBatches()
	buckets := bucketScores(batches)

	var runs []database.CorrelationRun
	for _, series := range PriceSeries {
		points, err := t.postRepo.GetPriceSeries(series, historyDays)
		if err != nil {
			return t.fail(fmt.Errorf("failed to load %s prices: %w", series, err))
		}
		prices := pricesToSeries(points)
		sentimentSeries := dailyCompoundSeries(buckets[series])

		results := []struct {
			name   string
			result correlation.Result
		}{
			{series, correlation.Pearson(sentimentSeries, prices)},
			// Does today's bucket mood precede tomorrow's price move?
			{series + " (1-day lead)", correlation.Lagged(sentimentSeries, prices, 1)},
		}
		for _, entry := range results {
			run := database.CorrelationRun{
				RunDate:     runDate,
				Series:      entry.name,
				Coefficient: entry.result.Coefficient,
				Samples:     entry.result.Samples,
				Strength:    entry.result.Strength,
				Valid:       entry.result.Valid,
			}
			if err := t.scoreRepo.StoreCorrelationRun(run); err != nil {
				return t.fail(fmt.Errorf("failed to store correlation run: %w", err))
			}
			runs = append(runs, run)
		}
	}

	shifts := correlation.DetectShifts(overallSeries, t.shiftThreshold)
	hashtags := sentiment.TrendingHashtags(batches, 5)

	totalPosts := 0
	for _, s := range scores {
		totalPosts += s.TotalPosts
	}

	html, err := report.Generate(report.Data{
		Date:         runDate,
		TotalPosts:   totalPosts,
		Scores:       scores,
		Correlations: runs,
		Shifts:       shifts,
		Hashtags:     hashtags,
		GeneratedAt:  now,
	})
	if err != nil {
		return t.fail(fmt.Errorf("failed to render report: %w", err))
	}

	reportID, err := t.scoreRepo.StoreReport(database.Report{RunDate: runDate, HTML: html})
	if err != nil {
		return t.fail(fmt.Errorf("failed to store report: %w", err))
	}

	if t.mailer != nil {
		subject := fmt.Sprintf("Daily sentiment report %s", runDate)
		if err := t.mailer.SendReport(subject, html); err != nil {
			// The report is stored; delivery alone failing is not
			// worth a retry of the whole run.
			slog.Error("Report delivery failed", "error", err)
		} else if err := t.scoreRepo.MarkReportSent(reportID); err != nil {
			slog.Warn("Failed to mark report sent", "error", err)
		}
	}

	slog.Info("Report run finished", "date", runDate, "accounts", len(scores),
		"posts", totalPosts, "shifts", len(shifts))

	return nil
}

// fail notifies the operator before surfacing the error to the retry
// machinery.
func (t *RunReportTask) fail(err error) error {
	if t.mailer != nil {
		if notifyErr := t.mailer.SendErrorNotification("Report run failed", err.Error()); notifyErr != nil {
			slog.Warn("Failed to send error notification", "error", notifyErr)
		}
	}
	return err
}

// accountBatches rescans the stored posts of every tracked account.
// Per-post scores and keyword buckets are not persisted, only the
// daily aggregates are.
func (t *RunReportTask) accountBatches() []sentiment.Batch {
	var batches []sentiment.Batch
	for _, account := range t.accountList {
		stored, err := t.postRepo.GetRecentPosts(account.Handle, recentScanLimit)
		if err != nil {
			slog.Warn("Failed to load posts for report scan", "account", account.Handle, "error", err)
			continue
		}
		posts := make([]post.Post, 0, len(stored))
		for _, sp := range stored {
			posts = append(posts, post.Post{ID: sp.PostID, Author: sp.Account, Text: sp.Text, CreatedAt: sp.CreatedAt})
		}
		batches = append(batches, t.analyzer.AnalyzeBatch(account.Handle, posts))
	}
	return batches
}

// bucketScores pools the keyword-bucketed scores across accounts,
// keyed by the price series they correlate against.
func bucketScores(batches []sentiment.Batch) map[string][]sentiment.Score {
	buckets := make(map[string][]sentiment.Score, len(PriceSeries))
	for _, b := range batches {
		buckets[SeriesOil] = append(buckets[SeriesOil], b.OilRelated...)
		buckets[SeriesElectricity] = append(buckets[SeriesElectricity], b.ElectricityRelated...)
	}
	return buckets
}

// dailyCompoundSeries averages a bucket's compound scores per UTC day.
func dailyCompoundSeries(scores []sentiment.Score) []correlation.DailyPoint {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, s := range scores {
		day := s.Post.CreatedAt.UTC().Format("2006-01-02")
		sums[day] += s.Compound
		counts[day]++
	}

	points := make([]correlation.DailyPoint, 0, len(sums))
	for day, sum := range sums {
		d, _ := time.Parse("2006-01-02", day)
		points = append(points, correlation.DailyPoint{Date: d, Value: sum / float64(counts[day])})
	}
	return points
}

func averagesToSeries(averages map[string]float64) []correlation.DailyPoint {
	points := make([]correlation.DailyPoint, 0, len(averages))
	for date, avg := range averages {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			slog.Warn("Skipping malformed score date", "date", date)
			continue
		}
		points = append(points, correlation.DailyPoint{Date: day, Value: avg})
	}
	return points
}

func pricesToSeries(prices []database.PricePoint) []correlation.DailyPoint {
	points := make([]correlation.DailyPoint, 0, len(prices))
	for _, p := range prices {
		day, err := time.Parse("2006-01-02", p.PriceDate)
		if err != nil {
			slog.Warn("Skipping malformed price date", "date", p.PriceDate)
			continue
		}
		points = append(points, correlation.DailyPoint{Date: day, Value: p.Value})
	}
	return points
}
