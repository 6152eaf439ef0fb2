package app

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vj-go/internal/database"
	"vj-go/internal/model"
	"vj-go/internal/vj"
)

func TestNewOperation(t *testing.T) {
	now := time.Date(2024, 3, 9, 7, 5, 3, 0, time.FixedZone("CET", 3600))
	op := NewOperation("Sync", now)

	if op.Name != "Sync" {
		t.Errorf("Name = %q", op.Name)
	}
	if op.RunID != "20240309T060503Z" {
		t.Errorf("RunID = %q, want UTC timestamp", op.RunID)
	}
	if op.Persisted() {
		t.Error("new operation should not be persisted")
	}
}

func TestOperation_Persisted(t *testing.T) {
	tests := []struct {
		name string
		run  *model.SyncRun
		want bool
	}{
		{name: "no run", run: nil, want: false},
		{name: "unsaved run", run: &model.SyncRun{}, want: false},
		{name: "saved run", run: &model.SyncRun{ID: 7}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &Operation{Run: tt.run}
			if got := op.Persisted(); got != tt.want {
				t.Errorf("Persisted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperation_Record(t *testing.T) {
	state := vj.State{Progress: vj.Progress{Completed: 5, Total: 5}}

	tests := []struct {
		name   string
		report *vj.Report
		err    error
		want   model.SyncRun
	}{
		{
			name:   "success with a failed task",
			report: &vj.Report{Downloaded: 3, Uploaded: 1, Failed: 1},
			want:   model.SyncRun{ID: 1, Status: database.RunSuccess, Total: 5, Completed: 5, Failed: 1},
		},
		{
			name:   "fatal error",
			report: &vj.Report{},
			err:    errors.New("listing remote files: 401"),
			want:   model.SyncRun{ID: 1, Status: database.RunError, Total: 5, Completed: 5, Error: "listing remote files: 401"},
		},
		{
			name: "no report",
			err:  errors.New("connecting"),
			want: model.SyncRun{ID: 1, Status: database.RunError, Total: 5, Completed: 5, Error: "connecting"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &Operation{Run: &model.SyncRun{ID: 1, Status: database.RunRunning}}
			op.Record(tt.report, state, tt.err)
			if diff := cmp.Diff(tt.want, *op.Run); diff != "" {
				t.Errorf("run mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("without run is a no-op", func(t *testing.T) {
		op := &Operation{}
		op.Record(&vj.Report{}, state, nil)
		if op.Run != nil {
			t.Error("Record created a run")
		}
	})
}
