package app

import (
	"time"

	"vj-go/internal/database"
	"vj-go/internal/model"
	"vj-go/internal/vj"
)

// RunIDFormat is the layout of run IDs, which also tag every log line.
const RunIDFormat = "20060102T150405Z"

// Operation tracks one CLI invocation. Only sync persists a run record,
// giving the operation a database ID.
type Operation struct {
	Name  string
	RunID string
	Run   *model.SyncRun
}

// NewOperation creates an in-memory operation whose run ID is derived from now.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{Name: name, RunID: now.UTC().Format(RunIDFormat)}
}

// Persisted returns true if a sync run record has been saved for this operation.
func (op *Operation) Persisted() bool {
	return op.Run != nil && op.Run.ID != 0
}

// Record copies the outcome of a sync pass onto the run record.
// Progress counts only download and upload tasks; Failed counts every failed task.
func (op *Operation) Record(report *vj.Report, state vj.State, err error) {
	if op.Run == nil {
		return
	}
	op.Run.Total = state.Progress.Total
	op.Run.Completed = state.Progress.Completed
	if report != nil {
		op.Run.Failed = report.Failed
	}
	op.Run.Status = database.RunSuccess
	op.Run.Error = ""
	if err != nil {
		op.Run.Status = database.RunError
		op.Run.Error = err.Error()
	}
}
