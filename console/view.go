package console

import (
	"github.com/moyoez/excel-console/types"
)

// Stage is the step of the ingestion flow the console is in.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageFileSelected Stage = "fileSelected"
	StagePreviewing   Stage = "previewing"
	StageReady        Stage = "ready"
	StageUploading    Stage = "uploading"
	StageSettling     Stage = "settling"
	StageFailed       Stage = "failed"
)

// View is an immutable snapshot of the console. Derived flags are methods
// computed from the snapshot, never stored. LogsUnavailable is set when the
// last history refresh failed.
type View struct {
	Stage           Stage                  `json:"stage"`
	File            *types.SelectedFile    `json:"file,omitempty"`
	Preview         *types.PreviewResult   `json:"preview,omitempty"`
	Progress        types.ProgressState    `json:"progress"`
	Outcome         *types.UploadOutcome   `json:"outcome,omitempty"`
	ErrorMessage    string                 `json:"errorMessage,omitempty"`
	SuccessMessage  string                 `json:"successMessage,omitempty"`
	Logs            []types.UploadLogEntry `json:"logs"`
	LogsLoading     bool                   `json:"logsLoading"`
	LogsUnavailable bool                   `json:"logsUnavailable"`
	Revision        uint64                 `json:"revision"`
}

func (v View) inFlight() bool {
	return v.Stage == StageUploading || v.Stage == StageSettling
}

func (v View) CanPreview() bool {
	return v.File != nil && v.Stage != StagePreviewing && !v.inFlight()
}

// CanUpload holds iff a preview exists, it has no errors and no upload is in flight.
func (v View) CanUpload() bool {
	return v.Preview != nil && !v.HasPreviewErrors() && !v.inFlight() && v.Stage != StagePreviewing
}

func (v View) HasPreviewErrors() bool {
	if v.Preview == nil {
		return false
	}
	return v.Preview.HasErrors || v.InvalidRowCount() > 0
}

func (v View) InvalidRowCount() int {
	return v.Preview.InvalidRows()
}

func (v View) TotalPreviewRows() int {
	if v.Preview == nil {
		return 0
	}
	return v.Preview.TotalRows
}

// Flags are the derived projections of a View, materialized for JSON clients.
type Flags struct {
	CanPreview       bool `json:"canPreview"`
	CanUpload        bool `json:"canUpload"`
	HasPreviewErrors bool `json:"hasPreviewErrors"`
	InvalidRowCount  int  `json:"invalidRowCount"`
	TotalPreviewRows int  `json:"totalPreviewRows"`
}

// Snapshot is what the console surface sends to browsers.
type Snapshot struct {
	View
	Flags
}

func (v View) Snapshot() Snapshot {
	return Snapshot{
		View: v,
		Flags: Flags{
			CanPreview:       v.CanPreview(),
			CanUpload:        v.CanUpload(),
			HasPreviewErrors: v.HasPreviewErrors(),
			InvalidRowCount:  v.InvalidRowCount(),
			TotalPreviewRows: v.TotalPreviewRows(),
		},
	}
}
