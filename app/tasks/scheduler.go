package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/featherwatch/featherwatch/app/accounts"
	"github.com/featherwatch/featherwatch/app/cfg"
	"github.com/featherwatch/featherwatch/app/database"
	"github.com/featherwatch/featherwatch/app/sentiment"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler runs the daily pipeline. It keeps exactly one worker:
// accounts are visited strictly one at a time so the politeness
// delays between them hold.
type Scheduler struct {
	accountList    []accounts.Account
	collector      AccountCollector
	analyzer       *sentiment.Analyzer
	postRepo       database.PostRepository
	scoreRepo      database.ScoreRepository
	mailer         ReportMailer
	reportTime     string
	shiftThreshold float64
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	taskQueue      chan TaskInterface
	now            func() time.Time
}

func NewScheduler(accountList []accounts.Account, collector AccountCollector,
	analyzer *sentiment.Analyzer, postRepo database.PostRepository,
	scoreRepo database.ScoreRepository, mailer ReportMailer) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		accountList:    accountList,
		collector:      collector,
		analyzer:       analyzer,
		postRepo:       postRepo,
		scoreRepo:      scoreRepo,
		mailer:         mailer,
		reportTime:     cfg.ReportTime,
		shiftThreshold: cfg.ShiftThreshold,
		ctx:            ctx,
		cancel:         cancel,
		taskQueue:      make(chan TaskInterface, 300),
		now:            time.Now,
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			wait := s.untilNextRun()
			slog.Info("Next scheduled run", "in", wait.Round(time.Second).String())

			timer := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				s.EnqueueRun()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// EnqueueRun queues one collection task per tracked account followed
// by the report task. Queue order is execution order.
func (s *Scheduler) EnqueueRun() {
	slog.Info("Enqueueing full run", "accounts", len(s.accountList))

	for _, account := range s.accountList {
		task := NewCollectAccountTask(account, s.collector, s.analyzer, s.postRepo, s.scoreRepo)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue CollectAccountTask", "account", account.Handle, "error", err)
		}
	}

	reportTask := NewRunReportTask(s.accountList, s.analyzer, s.postRepo, s.scoreRepo, s.mailer, s.shiftThreshold)
	if err := s.EnqueueTask(reportTask); err != nil {
		slog.Warn("Failed to enqueue RunReportTask", "error", err)
	}
}

// untilNextRun computes the wait until the next occurrence of the
// configured report time in local time.
func (s *Scheduler) untilNextRun() time.Duration {
	at, err := time.Parse("15:04", s.reportTime)
	if err != nil {
		slog.Error("Invalid report time, defaulting to 24h", "report_time", s.reportTime, "error", err)
		return 24 * time.Hour
	}

	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 15*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "account", task.GetAccount(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			// The delayed re-enqueue joins the WaitGroup so Stop cannot
			// close the queue while a retry is still pending.
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				case <-time.After(retryDelay):
				}
				if retryErr := s.EnqueueTask(task); retryErr != nil {
					slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
