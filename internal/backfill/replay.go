// Package backfill replays existing commit history through the pipeline.
package backfill

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/internal/pipeline"
	"github.com/clintrovert/taskhook/internal/webhook"
	"github.com/clintrovert/taskhook/pkg/types"
)

// DefaultBatchSize is the number of commits replayed per synthetic push
const DefaultBatchSize = 100

// RepositoryLookup resolves a repository full name to its stable id
type RepositoryLookup interface {
	GetRepository(ctx context.Context, fullName string) (*types.Repository, error)
}

// PushProcessor runs a push through classification and completion
type PushProcessor interface {
	ProcessPush(ctx context.Context, push *webhook.PushEvent) (pipeline.Summary, error)
}

// Replayer feeds historical commits to a PushProcessor as synthetic pushes
type Replayer struct {
	repos     RepositoryLookup
	processor PushProcessor
	batchSize int
	logger    *zap.Logger
}

// NewReplayer creates a new replayer. batchSize <= 0 uses DefaultBatchSize.
func NewReplayer(repos RepositoryLookup, processor PushProcessor, batchSize int, logger *zap.Logger) *Replayer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Replayer{
		repos:     repos,
		processor: processor,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Replay processes commits, oldest first, on behalf of the named repository
func (r *Replayer) Replay(ctx context.Context, fullName string, commits []webhook.Commit) (pipeline.Summary, error) {
	repo, err := r.repos.GetRepository(ctx, fullName)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("failed to resolve repository: %w", err)
	}

	var total pipeline.Summary
	for start := 0; start < len(commits); start += r.batchSize {
		end := min(start+r.batchSize, len(commits))

		push := &webhook.PushEvent{
			RepositoryID:   repo.ExternalID,
			RepositoryName: repo.Name,
			Commits:        commits[start:end],
		}
		summary, err := r.processor.ProcessPush(ctx, push)
		total = merge(total, summary)
		if err != nil {
			return total, fmt.Errorf("failed to replay commits %d-%d: %w", start, end-1, err)
		}

		r.logger.Info("replayed batch",
			zap.String("repository", repo.Name),
			zap.Int("from", start),
			zap.Int("to", end-1),
			zap.Int("completed", summary.Completed),
		)
	}

	return total, nil
}

func merge(a, b pipeline.Summary) pipeline.Summary {
	return pipeline.Summary{
		Commits:            a.Commits + b.Commits,
		ClassifierFailures: a.ClassifierFailures + b.ClassifierFailures,
		Classified:         a.Classified + b.Classified,
		Unresolved:         a.Unresolved + b.Unresolved,
		Completed:          a.Completed + b.Completed,
		AlreadyCompleted:   a.AlreadyCompleted + b.AlreadyCompleted,
		WriteFailures:      a.WriteFailures + b.WriteFailures,
		RepositoryUpserted: a.RepositoryUpserted || b.RepositoryUpserted,
	}
}
