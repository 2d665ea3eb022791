package api

import (
	"context"

	"github.com/featherwatch/featherwatch/app/accounts"
	"github.com/featherwatch/featherwatch/app/database"
	"github.com/featherwatch/featherwatch/app/tasks"
)

// Prober reports whether the federated bridge is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

type Handler struct {
	db          *database.DB
	postRepo    database.PostRepository
	scoreRepo   database.ScoreRepository
	accountList []accounts.Account
	prober      Prober
	scheduler   tasks.TaskSchedulerInterface
}
