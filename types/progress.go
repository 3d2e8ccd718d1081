package types

// Phase is the unified progress phase shown to the user.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseUploading  Phase = "uploading"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Rank orders phases for forward-only transitions. Completed and failed share a rank.
func (p Phase) Rank() int {
	switch p {
	case PhaseUploading:
		return 1
	case PhaseProcessing:
		return 2
	case PhaseCompleted, PhaseFailed:
		return 3
	}
	return 0
}

// Terminal reports whether no further progress is expected for the upload.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// ProgressState is the single source of truth for displayed progress.
type ProgressState struct {
	Percentage      int    `json:"percentage"`
	Phase           Phase  `json:"phase"`
	SuccessfulCount int    `json:"successfulCount"`
	FailedCount     int    `json:"failedCount"`
	LastError       string `json:"lastError,omitempty"`

	// CountsReported is set once the push channel delivered row counts.
	CountsReported bool `json:"countsReported"`
}

// Push-channel statuses.
const (
	PushConnected  = "connected"
	PushProcessing = "processing"
	PushCompleted  = "completed"
	PushFailed     = "failed"
)

// PushMessage is one server-initiated frame on the progress channel.
// Every field is optional on the wire.
type PushMessage struct {
	Status     string   `json:"status,omitempty"`
	Type       string   `json:"type,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
	Current    *int     `json:"current,omitempty"`
	Total      *int     `json:"total,omitempty"`
	Successful *int     `json:"successful,omitempty"`
	Failed     *int     `json:"failed,omitempty"`
	Error      string   `json:"error,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// EffectiveStatus folds the legacy {"type":"connected"} greeting into Status.
func (m PushMessage) EffectiveStatus() string {
	if m.Status != "" {
		return m.Status
	}
	if m.Type == PushConnected {
		return PushConnected
	}
	return ""
}
