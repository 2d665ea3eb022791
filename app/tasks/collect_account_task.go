package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/featherwatch/featherwatch/app/accounts"
	"github.com/featherwatch/featherwatch/app/database"
	"github.com/featherwatch/featherwatch/app/post"
	"github.com/featherwatch/featherwatch/app/sentiment"
)

// AccountCollector gathers one account's recent posts. Collection
// never fails; an empty result is a valid outcome.
type AccountCollector interface {
	CollectWith(ctx context.Context, account string, windowDays, maxItems int) []post.Post
}

// CollectAccountTask collects one account, scores the result and
// persists both the posts and the day's aggregate.
type CollectAccountTask struct {
	Task
	account   accounts.Account
	collector AccountCollector
	analyzer  *sentiment.Analyzer
	postRepo  database.PostRepository
	scoreRepo database.ScoreRepository
	now       func() time.Time
}

func NewCollectAccountTask(account accounts.Account, collector AccountCollector,
	analyzer *sentiment.Analyzer, postRepo database.PostRepository,
	scoreRepo database.ScoreRepository) *CollectAccountTask {
	return &CollectAccountTask{
		Task:      NewTask(TaskTypeCollectAccount, account.Handle),
		account:   account,
		collector: collector,
		analyzer:  analyzer,
		postRepo:  postRepo,
		scoreRepo: scoreRepo,
		now:       time.Now,
	}
}

func (t *CollectAccountTask) Execute(ctx context.Context) error {
	collected := t.collector.CollectWith(ctx, t.account.Handle, t.account.WindowDays, t.account.MaxItems)

	now := t.now().UTC()
	for _, p := range collected {
		stored := database.StoredPost{
			Account:     p.Author,
			PostID:      p.ID,
			Text:        p.Text,
			CreatedAt:   p.CreatedAt,
			Replies:     p.Counts.Replies,
			Reshares:    p.Counts.Reshares,
			Likes:       p.Counts.Likes,
			URL:         p.URL,
			Source:      string(p.Source),
			CollectedAt: now,
		}
		if err := t.postRepo.UpsertPost(stored); err != nil {
			return fmt.Errorf("failed to store post %s: %w", p.ID, err)
		}
	}

	batch := t.analyzer.AnalyzeBatch(t.account.Handle, collected)
	score := database.AccountScore{
		Account:       batch.Account,
		ScoreDate:     now.Format("2006-01-02"),
		AvgSentiment:  batch.AverageSentiment,
		TotalPosts:    batch.TotalPosts,
		PositiveCount: batch.PositiveCount,
		NegativeCount: batch.NegativeCount,
		NeutralCount:  batch.NeutralCount,
		Label:         batch.Label,
	}
	if err := t.scoreRepo.UpsertScore(score); err != nil {
		return fmt.Errorf("failed to store account score: %w", err)
	}

	slog.Info("Account collected and scored", "account", t.account.Handle,
		"posts", batch.TotalPosts, "avg_sentiment", batch.AverageSentiment, "label", batch.Label)

	return nil
}
