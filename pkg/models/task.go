package models

import "fmt"

// Stage is one step of the fixed origin-indexing pipeline.
type Stage string

const (
	StagePending          Stage = "pending"
	StageHeadResolved     Stage = "head_resolved"
	StageDirectoryIndexed Stage = "directory_indexed"
	StageOriginAggregated Stage = "origin_aggregated"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// NextStage is the pure transition function of the pipeline state machine.
// Failed and Done are terminal; a fresh trigger restarts a run at Pending.
func NextStage(s Stage) (Stage, error) {
	switch s {
	case StagePending:
		return StageHeadResolved, nil
	case StageHeadResolved:
		return StageDirectoryIndexed, nil
	case StageDirectoryIndexed:
		return StageOriginAggregated, nil
	case StageOriginAggregated:
		return StageDone, nil
	case StageDone, StageFailed:
		return s, fmt.Errorf("stage %q is terminal", s)
	default:
		return s, fmt.Errorf("unknown stage %q", s)
	}
}

// IsTerminal reports whether the stage ends a run.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// IndexTask is the unit of work passed between pipeline stages through the
// task transport. Delivery is at-least-once; every stage must tolerate
// duplicate executions.
type IndexTask struct {
	RunID     string `json:"run_id"`
	Stage     Stage  `json:"stage"`
	OriginURL string `json:"origin_url"`
	ToolID    int64  `json:"tool_id"`

	// Set once the head is resolved.
	DirectoryID Sha1 `json:"directory_id,omitempty"`

	// IsOriginHead records that DirectoryID is the head of OriginURL, so
	// the aggregation stage knows where to attribute the directory fact.
	IsOriginHead bool `json:"is_origin_head,omitempty"`
}
