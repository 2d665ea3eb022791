package tasks

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/featherwatch/featherwatch/app/accounts"
	"github.com/featherwatch/featherwatch/app/database"
	"github.com/featherwatch/featherwatch/app/post"
	"github.com/featherwatch/featherwatch/app/sentiment"
)

type stubCollector struct {
	posts []post.Post
	calls int
}

func (c *stubCollector) CollectWith(ctx context.Context, account string, windowDays, maxItems int) []post.Post {
	c.calls++
	return c.posts
}

type fakePostRepo struct {
	posts  map[string]database.StoredPost
	prices map[string][]database.PricePoint
	err    error
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{
		posts:  make(map[string]database.StoredPost),
		prices: make(map[string][]database.PricePoint),
	}
}

func (r *fakePostRepo) UpsertPost(p database.StoredPost) error {
	if r.err != nil {
		return r.err
	}
	r.posts[p.Account+"/"+p.PostID] = p
	return nil
}

func (r *fakePostRepo) GetRecentPosts(account string, limit int) ([]database.StoredPost, error) {
	var out []database.StoredPost
	for _, p := range r.posts {
		if p.Account == account {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePostRepo) GetPostCount() (int, error)                      { return len(r.posts), nil }
func (r *fakePostRepo) GetAccountPostCount(account string) (int, error) { return 0, nil }
func (r *fakePostRepo) UpsertPrice(p database.PricePoint) error         { return nil }

func (r *fakePostRepo) GetPriceSeries(series string, days int) ([]database.PricePoint, error) {
	return r.prices[series], nil
}

type fakeScoreRepo struct {
	scores    map[string]database.AccountScore
	averages  map[string]float64
	runs      []database.CorrelationRun
	reports   []database.Report
	sentIDs   []int64
	scoresErr error
}

func newFakeScoreRepo() *fakeScoreRepo {
	return &fakeScoreRepo{
		scores:   make(map[string]database.AccountScore),
		averages: make(map[string]float64),
	}
}

func (r *fakeScoreRepo) UpsertScore(s database.AccountScore) error {
	r.scores[s.Account+"/"+s.ScoreDate] = s
	return nil
}

func (r *fakeScoreRepo) GetScores(scoreDate string) ([]database.AccountScore, error) {
	if r.scoresErr != nil {
		return nil, r.scoresErr
	}
	var out []database.AccountScore
	for _, s := range r.scores {
		if s.ScoreDate == scoreDate {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeScoreRepo) GetScoreHistory(account string, days int) ([]database.AccountScore, error) {
	return nil, nil
}

func (r *fakeScoreRepo) GetDailyAverages(days int) (map[string]float64, error) {
	return r.averages, nil
}

func (r *fakeScoreRepo) StoreCorrelationRun(run database.CorrelationRun) error {
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeScoreRepo) GetLatestCorrelationRuns(runDate string) ([]database.CorrelationRun, error) {
	return r.runs, nil
}

func (r *fakeScoreRepo) StoreReport(rep database.Report) (int64, error) {
	r.reports = append(r.reports, rep)
	return int64(len(r.reports)), nil
}

func (r *fakeScoreRepo) MarkReportSent(id int64) error {
	r.sentIDs = append(r.sentIDs, id)
	return nil
}

func (r *fakeScoreRepo) GetLatestReport() (*database.Report, error) {
	if len(r.reports) == 0 {
		return nil, nil
	}
	return &r.reports[len(r.reports)-1], nil
}

type fakeMailer struct {
	reports       []string
	notifications []string
	sendErr       error
}

func (m *fakeMailer) SendReport(subject, html string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.reports = append(m.reports, html)
	return nil
}

func (m *fakeMailer) SendErrorNotification(subject, detail string) error {
	m.notifications = append(m.notifications, detail)
	return nil
}

func testAnalyzer() *sentiment.Analyzer {
	return sentiment.NewAnalyzer([]string{"oil"}, []string{"grid"})
}

func TestTaskRetryBookkeeping(t *testing.T) {
	task := NewTask(TaskTypeCollectAccount, "tester")

	if !task.CanRetry() {
		t.Fatal("Fresh task must be retryable")
	}
	for i := 0; i < DefaultMaxRetries; i++ {
		task.IncrementRetryCount()
	}
	if task.CanRetry() {
		t.Error("Task must not be retryable past the maximum")
	}
	if task.GetRetryCount() != DefaultMaxRetries {
		t.Errorf("Expected %d retries recorded, got %d", DefaultMaxRetries, task.GetRetryCount())
	}
}

func TestCollectAccountTaskStoresPostsAndScore(t *testing.T) {
	now := time.Now().UTC()
	collector := &stubCollector{posts: []post.Post{
		{ID: "1", Author: "tester", Text: "wonderful day for oil markets", CreatedAt: now, Source: post.SourceFederated},
		{ID: "2", Author: "tester", Text: "terrible outage on the grid", CreatedAt: now, Source: post.SourceLive},
	}}
	postRepo := newFakePostRepo()
	scoreRepo := newFakeScoreRepo()

	task := NewCollectAccountTask(accounts.Account{Handle: "tester"}, collector,
		testAnalyzer(), postRepo, scoreRepo)

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(postRepo.posts) != 2 {
		t.Errorf("Expected 2 stored posts, got %d", len(postRepo.posts))
	}
	if postRepo.posts["tester/2"].Source != "live" {
		t.Errorf("Provenance must survive storage, got %q", postRepo.posts["tester/2"].Source)
	}

	score, ok := scoreRepo.scores["tester/"+now.Format("2006-01-02")]
	if !ok {
		t.Fatal("Expected a stored score for today")
	}
	if score.TotalPosts != 2 {
		t.Errorf("Expected 2 scored posts, got %d", score.TotalPosts)
	}
}

func TestCollectAccountTaskEmptyResultStillScores(t *testing.T) {
	scoreRepo := newFakeScoreRepo()
	task := NewCollectAccountTask(accounts.Account{Handle: "tester"}, &stubCollector{},
		testAnalyzer(), newFakePostRepo(), scoreRepo)

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("An empty collection is not an error: %v", err)
	}
	if len(scoreRepo.scores) != 1 {
		t.Error("A zero-post day must still be recorded")
	}
}

func TestCollectAccountTaskRepoFailure(t *testing.T) {
	postRepo := newFakePostRepo()
	postRepo.err = errors.New("disk full")
	collector := &stubCollector{posts: []post.Post{{ID: "1", Author: "tester", Text: "x", CreatedAt: time.Now()}}}

	task := NewCollectAccountTask(accounts.Account{Handle: "tester"}, collector,
		testAnalyzer(), postRepo, newFakeScoreRepo())

	if err := task.Execute(context.Background()); err == nil {
		t.Error("Storage failures must surface for retry")
	}
}

func TestRunReportTaskStoresAndSendsReport(t *testing.T) {
	now := time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)
	today := now.Format("2006-01-02")

	postRepo := newFakePostRepo()
	scoreRepo := newFakeScoreRepo()
	mailer := &fakeMailer{}

	scoreRepo.scores["tester/"+today] = database.AccountScore{
		Account: "tester", ScoreDate: today, AvgSentiment: 0.2, TotalPosts: 4, Label: "positive",
	}

	// Five days of oil-bucket posts with mixed sentiment, prices for
	// both series on the same days. No post mentions the grid, so the
	// electricity bucket stays empty.
	texts := []string{
		"oil profits look wonderful today",
		"terrible oil spill ruins everything",
		"oil output is great and rising",
		"awful week for oil producers",
		"oil demand is fantastic",
	}
	for i := 0; i < 5; i++ {
		day := now.AddDate(0, 0, -i)
		date := day.Format("2006-01-02")
		scoreRepo.averages[date] = 0.1 * float64(i)
		postRepo.UpsertPost(database.StoredPost{
			Account: "tester", PostID: strconv.Itoa(i), Text: texts[i], CreatedAt: day,
		})
		postRepo.prices["oil"] = append(postRepo.prices["oil"],
			database.PricePoint{Series: "oil", PriceDate: date, Value: 80 - float64(i)})
		postRepo.prices["electricity"] = append(postRepo.prices["electricity"],
			database.PricePoint{Series: "electricity", PriceDate: date, Value: 40 + float64(i)})
	}

	task := NewRunReportTask([]accounts.Account{{Handle: "tester"}}, testAnalyzer(),
		postRepo, scoreRepo, mailer, 0.3)
	task.now = func() time.Time { return now }

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(scoreRepo.runs) != 4 {
		t.Fatalf("Expected same-day and 1-day-lead runs per price series, got %d", len(scoreRepo.runs))
	}
	oilRun := scoreRepo.runs[0]
	if oilRun.Series != "oil" || !oilRun.Valid || oilRun.Samples != 5 {
		t.Errorf("Expected a valid 5-sample oil run, got %+v", oilRun)
	}
	if scoreRepo.runs[1].Series != "oil (1-day lead)" {
		t.Errorf("Expected the lead run after the same-day run, got %+v", scoreRepo.runs[1])
	}
	// Electricity prices exist but no post is in the electricity
	// bucket: its run must come up empty instead of borrowing the
	// overall daily averages.
	elecRun := scoreRepo.runs[2]
	if elecRun.Series != "electricity" || elecRun.Valid || elecRun.Samples != 0 {
		t.Errorf("Electricity must correlate only its own bucket, got %+v", elecRun)
	}

	if len(scoreRepo.reports) != 1 {
		t.Fatalf("Expected 1 stored report, got %d", len(scoreRepo.reports))
	}
	if !strings.Contains(scoreRepo.reports[0].HTML, "@tester") {
		t.Error("Report must include the account table")
	}
	if len(mailer.reports) != 1 {
		t.Errorf("Expected the report to be mailed once, got %d", len(mailer.reports))
	}
	if len(scoreRepo.sentIDs) != 1 {
		t.Error("Delivered report must be marked sent")
	}
}

func TestRunReportTaskMailFailureIsNotFatal(t *testing.T) {
	scoreRepo := newFakeScoreRepo()
	mailer := &fakeMailer{sendErr: errors.New("smtp down")}

	task := NewRunReportTask(nil, testAnalyzer(), newFakePostRepo(), scoreRepo, mailer, 0.3)

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Delivery failure must not fail the run: %v", err)
	}
	if len(scoreRepo.reports) != 1 {
		t.Error("Report must still be stored when delivery fails")
	}
	if len(scoreRepo.sentIDs) != 0 {
		t.Error("Undelivered report must not be marked sent")
	}
}

func TestRunReportTaskNotifiesOnPipelineFailure(t *testing.T) {
	scoreRepo := newFakeScoreRepo()
	scoreRepo.scoresErr = errors.New("table locked")
	mailer := &fakeMailer{}

	task := NewRunReportTask(nil, testAnalyzer(), newFakePostRepo(), scoreRepo, mailer, 0.3)

	if err := task.Execute(context.Background()); err == nil {
		t.Fatal("Pipeline failure must surface for retry")
	}
	if len(mailer.notifications) != 1 {
		t.Errorf("Expected one error notification, got %d", len(mailer.notifications))
	}
}

func TestSchedulerEnqueueRunOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Scheduler{
		accountList: []accounts.Account{{Handle: "one"}, {Handle: "two"}},
		collector:   &stubCollector{},
		analyzer:    testAnalyzer(),
		postRepo:    newFakePostRepo(),
		scoreRepo:   newFakeScoreRepo(),
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 10),
		now:         time.Now,
	}

	s.EnqueueRun()
	close(s.taskQueue)

	var types []TaskType
	var taskAccounts []string
	for task := range s.taskQueue {
		types = append(types, task.GetType())
		taskAccounts = append(taskAccounts, task.GetAccount())
	}

	if len(types) != 3 {
		t.Fatalf("Expected 3 queued tasks, got %d", len(types))
	}
	if types[0] != TaskTypeCollectAccount || types[1] != TaskTypeCollectAccount || types[2] != TaskTypeRunReport {
		t.Errorf("Unexpected task order: %v", types)
	}
	if taskAccounts[0] != "one" || taskAccounts[1] != "two" {
		t.Errorf("Accounts must be visited in listed order, got %v", taskAccounts)
	}
}

type alwaysFailingTask struct {
	Task
	executed chan struct{}
}

func (t *alwaysFailingTask) Execute(ctx context.Context) error {
	select {
	case t.executed <- struct{}{}:
	default:
	}
	return errors.New("boom")
}

func TestStopWaitsForPendingRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		reportTime: "18:00",
		ctx:        ctx,
		cancel:     cancel,
		taskQueue:  make(chan TaskInterface, 10),
		now:        time.Now,
	}
	s.wg.Add(1)
	go s.worker()

	task := &alwaysFailingTask{
		Task:     NewTask(TaskTypeCollectAccount, "tester"),
		executed: make(chan struct{}, 1),
	}
	if err := s.EnqueueTask(task); err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}

	select {
	case <-task.executed:
	case <-time.After(2 * time.Second):
		t.Fatal("Task was never executed")
	}

	// The failed task has a delayed re-enqueue in flight; Stop must
	// wait it out instead of closing the queue underneath it.
	s.Stop()
}

func TestUntilNextRun(t *testing.T) {
	s := &Scheduler{reportTime: "18:00"}

	s.now = func() time.Time { return time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC) }
	if wait := s.untilNextRun(); wait != time.Hour {
		t.Errorf("Expected 1h until the run, got %s", wait)
	}

	// Past today's slot: tomorrow.
	s.now = func() time.Time { return time.Date(2024, 6, 10, 19, 0, 0, 0, time.UTC) }
	if wait := s.untilNextRun(); wait != 23*time.Hour {
		t.Errorf("Expected 23h until the run, got %s", wait)
	}
}
