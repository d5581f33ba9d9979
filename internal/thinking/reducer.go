package thinking

import (
	"log/slog"

	"github.com/rendis/iterview/internal/expressions"
	"github.com/rendis/iterview/pkg/schema"
)

// Summarizer derives the summary of an archived stage. The item's Summary
// field is empty on input.
type Summarizer func(item StageHistoryItem) string

// Gap describes a jump in sequence numbers.
type Gap struct {
	CorrelationID string
	Expected      int64
	Got           int64
}

// Options configures Reduce. Zero values take the defaults.
type Options struct {
	MaxChars  int
	MaxLines  int
	Summarize Summarizer
	// OnGap is called when an event skips sequence numbers. The event is
	// still applied. Defaults to a slog warning.
	OnGap func(Gap)
}

func (o Options) withDefaults() Options {
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	if o.MaxLines <= 0 {
		o.MaxLines = DefaultMaxLines
	}
	if o.Summarize == nil {
		o.Summarize = FirstLineSummary
	}
	if o.OnGap == nil {
		o.OnGap = logGap
	}
	return o
}

func logGap(g Gap) {
	slog.Default().Warn("thinking stream sequence gap",
		slog.String("correlation_id", g.CorrelationID),
		slog.Int64("expected", g.Expected),
		slog.Int64("got", g.Got),
	)
}

// FirstLineSummary summarizes a stage by its first non-blank line, falling
// back to the full text so a non-empty stage never has an empty summary.
func FirstLineSummary(item StageHistoryItem) string {
	if line := expressions.FirstLine(item.Text); line != "" {
		return line
	}
	return item.Text
}

// Reduce folds ev into prev and returns the next state. prev is never
// modified; when the event changes nothing prev itself is returned.
// A nil prev is treated as Initial().
func Reduce(prev *State, ev schema.Event, opts Options) *State {
	if prev == nil {
		prev = Initial()
	}
	opts = opts.withDefaults()

	if prev.CorrelationID != "" && ev.CorrelationID != prev.CorrelationID {
		return prev
	}

	switch {
	case ev.IsStream():
		if ev.Sequence <= prev.LastSequence {
			return prev
		}
		checkGap(prev, ev, opts)

		next := *prev
		bindCorrelation(&next, ev)
		next.Text, next.IsTruncated = Truncate(prev.Text+ev.Stream.Content, opts.MaxLines, opts.MaxChars)
		next.MaxChars = opts.MaxChars
		next.MaxLines = opts.MaxLines
		next.Status = StatusStreaming
		next.LastSequence = ev.Sequence
		return &next

	case ev.IsProgress():
		if ev.Sequence <= prev.LastSequence {
			return prev
		}
		checkGap(prev, ev, opts)

		next := *prev
		bindCorrelation(&next, ev)
		next.LastSequence = ev.Sequence

		if ev.Progress.State.IsTerminal() {
			if next.CurrentStage != "" && next.Text != "" {
				archive(&next, prev.LastSequence, opts)
				next.CurrentStage = ""
				next.CurrentStageStartSeq = NoSeq
			}
			next.Status = StatusComplete
			return &next
		}

		next.MaxChars = opts.MaxChars
		next.MaxLines = opts.MaxLines
		if stage := ev.Progress.Stage; stage != "" && stage != next.CurrentStage {
			if next.CurrentStage != "" && next.Text != "" {
				archive(&next, prev.LastSequence, opts)
			}
			next.CurrentStage = stage
			next.CurrentStageStartSeq = ev.Sequence
		}
		return &next

	default:
		return prev
	}
}

func bindCorrelation(s *State, ev schema.Event) {
	if s.CorrelationID == "" {
		s.CorrelationID = ev.CorrelationID
	}
}

func checkGap(prev *State, ev schema.Event, opts Options) {
	if prev.LastSequence >= 0 && ev.Sequence > prev.LastSequence+1 {
		opts.OnGap(Gap{
			CorrelationID: ev.CorrelationID,
			Expected:      prev.LastSequence + 1,
			Got:           ev.Sequence,
		})
	}
}

// archive moves the current stage text into history and clears the buffer.
func archive(s *State, endSeq int64, opts Options) {
	item := StageHistoryItem{
		Stage:    s.CurrentStage,
		Text:     s.Text,
		StartSeq: s.CurrentStageStartSeq,
		EndSeq:   endSeq,
	}
	item.Summary = opts.Summarize(item)
	if item.Summary == "" {
		item.Summary = FirstLineSummary(item)
	}

	history := make([]StageHistoryItem, 0, len(s.StageHistory)+1)
	history = append(history, s.StageHistory...)
	history = append(history, item)
	if len(history) > MaxStageHistory {
		history = history[len(history)-MaxStageHistory:]
	}

	s.StageHistory = history
	s.Text = ""
	s.IsTruncated = false
}
