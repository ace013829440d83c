package session

import "github.com/sjoeboo/commander/internal/filter"

// PollKind is the outcome of one poll pass over a waiting session.
type PollKind int

const (
	// PollNone means nothing to report this tick.
	PollNone PollKind = iota
	// PollProgress means the progress counter should be refreshed.
	PollProgress
	// PollIncremental means an incremental summary should be posted.
	PollIncremental
	// PollSummarizing means the session went idle and the final summary
	// is being prepared.
	PollSummarizing
	// PollComplete means the final response is ready to deliver.
	PollComplete
)

func (k PollKind) String() string {
	switch k {
	case PollProgress:
		return "progress"
	case PollIncremental:
		return "incremental"
	case PollSummarizing:
		return "summarizing"
	case PollComplete:
		return "complete"
	default:
		return "none"
	}
}

// PollResult carries what the chat layer should do after a poll pass.
type PollResult struct {
	Kind PollKind

	// Text is the progress line, incremental summary, or final summary.
	Text string

	// Query and ReplyTo identify the originating message for PollComplete.
	Query   string
	ReplyTo int

	// Output classifies the raw response for PollComplete so the chat
	// layer can prefix questions and errors.
	Output filter.OutputKind
}
