package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageTaskStart    Stage = "TASK_START"
	StageFetchDone    Stage = "FETCH_DONE"
	StageFetchError   Stage = "FETCH_ERROR"
	StageStageError   Stage = "STAGE_ERROR"
	StageTaskCanceled Stage = "TASK_CANCELED"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Outcomes reported in the Note of a RUN_DONE event.
const (
	OutcomeCompleted = "completed"
	OutcomeCanceled  = "canceled"
)

// Event captures a single crawl milestone.
type Event struct {
	// RunID identifies the engine run that produced the event.
	RunID string
	// TS is the timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Site is the host label of URL, set on task level events.
	Site string
	URL  string
	// Depth of URL in the crawl tree.
	Depth int
	// Bytes is the body size of a completed fetch.
	Bytes       int64
	StatusClass StatusClass
	// PipelineStage names the failing stage of a STAGE_ERROR event.
	PipelineStage string
	// Active is the number of in-flight tasks once the event was recorded.
	Active int
	// Enqueued counts child links the task added to the frontier.
	Enqueued int
	// Dur is the fetch latency for fetch events and the wall time for RUN_DONE.
	Dur time.Duration
	// Note carries low-volume context such as error text or the run outcome.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageTaskStart, StageFetchError, StageTaskCanceled:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StageFetchDone:
		if e.URL == "" {
			return errors.New("fetch done requires url")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	case StageStageError:
		if e.PipelineStage == "" {
			return errors.New("stage error requires pipeline stage")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
