package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/repository"
)

// LogNotifier writes notifications to the log. Used when no chat is configured.
type LogNotifier struct {
	logger *zap.Logger
}

var _ repository.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, l entity.Listing) error {
	n.logger.Info("new listing",
		zap.String("platform", string(l.Platform)),
		zap.String("brand", l.Brand),
		zap.String("title", l.Title),
		zap.String("price", l.PriceText),
		zap.String("url", l.URL),
	)
	return nil
}

func (n *LogNotifier) Summary(_ context.Context, s entity.RunSummary) error {
	n.logger.Info("run summary",
		zap.String("run_id", s.RunID),
		zap.Int("total", s.Total),
		zap.Int("new", s.New),
		zap.Strings("brands", s.Brands),
		zap.Int("failed", s.Failed),
		zap.Bool("stopped", s.Stopped),
	)
	return nil
}
