package harvest

import "time"

// TaskStatus is the terminal classification of one crawl task.
type TaskStatus string

// Task status values reported in run summaries.
const (
	TaskStatusSucceeded TaskStatus = "success"
	TaskStatusPartial   TaskStatus = "partial"
	TaskStatusFailed    TaskStatus = "failed"
)

// CrawlTask is one (source, keyword, area) unit of work. It owns no shared
// state; the scheduler creates it before dispatch and discards it once the
// result is merged.
type CrawlTask struct {
	Source       string
	Keyword      string
	Area         string
	MaxPages     int
	FetchDetails bool
}

// TaskResult carries everything a finished task produced.
type TaskResult struct {
	Task    CrawlTask
	Status  TaskStatus
	Records []JobRecord

	PagesFetched int
	PagesFailed  int
	PromoSkipped int
	CardErrors   int

	Err error
}

// FirstError returns the task error text, if any.
func (r TaskResult) FirstError() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RunResult is the summary returned by every crawl invocation. A run that
// fails on every source still yields a well-formed (empty) result.
type RunResult struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	Tasks []TaskResult

	RawCount   int
	FinalCount int
	NewCount   int
	SavedCount int
}

// Failed reports whether no task produced any records.
func (r RunResult) Failed() bool {
	for _, t := range r.Tasks {
		if len(t.Records) > 0 {
			return false
		}
	}
	return len(r.Tasks) > 0
}
