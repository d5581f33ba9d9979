package thinking

import (
	"log/slog"

	"github.com/rendis/iterview/internal/expressions"
)

// ExprSummarizer returns a Summarizer backed by an expr program over
// expressions.SummaryInput. Failures and empty results fall back to
// FirstLineSummary. Compile errors are returned here so a bad setting
// surfaces at startup.
func ExprSummarizer(source string, logger *slog.Logger) (Summarizer, error) {
	prg, err := expressions.CompileSummary(source)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(item StageHistoryItem) string {
		out, err := prg.Run(expressions.NewSummaryInput(item.Stage, item.Text, item.StartSeq, item.EndSeq))
		if err != nil {
			logger.Warn("stage summary expression failed",
				slog.String("stage", string(item.Stage)),
				slog.String("error", err.Error()),
			)
			return FirstLineSummary(item)
		}
		if out == "" {
			return FirstLineSummary(item)
		}
		return out
	}, nil
}
