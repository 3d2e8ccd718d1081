package types

import (
	"strings"
	"time"
)

// UploadOutcome is the synchronous answer of the upload call.
type UploadOutcome struct {
	Message   string `json:"message"`
	UploadID  int64  `json:"upload_id"`
	TotalRows int    `json:"total_rows"`
}

type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// UploadStatusFrom normalizes the backend enum, which may arrive upper-cased.
func UploadStatusFrom(s string) UploadStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processing":
		return UploadProcessing
	case "completed":
		return UploadCompleted
	case "failed":
		return UploadFailed
	}
	return UploadPending
}

// UploadLogEntry is a persisted upload record owned by the backend.
type UploadLogEntry struct {
	ID             int64        `json:"id"`
	Filename       string       `json:"filename"`
	UploadedAt     string       `json:"uploaded_at"`
	Status         UploadStatus `json:"status"`
	TotalRows      int          `json:"total_rows,omitempty"`
	SuccessfulRows int          `json:"successful_rows,omitempty"`
	FailedRows     int          `json:"failed_rows,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
}

var uploadedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Time parses UploadedAt. The backend omits the zone for naive timestamps.
func (e UploadLogEntry) Time() (time.Time, bool) {
	for _, layout := range uploadedAtLayouts {
		if t, err := time.Parse(layout, e.UploadedAt); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ValidationResponse answers POST /api/excel/validate-file.
type ValidationResponse struct {
	Message     string   `json:"message"`
	Filename    string   `json:"filename"`
	SizeOK      bool     `json:"size_ok"`
	FileID      string   `json:"file_id,omitempty"`
	Sheets      []string `json:"sheets,omitempty"`
	TotalSheets int      `json:"total_sheets,omitempty"`
}

// SheetsResponse answers GET /api/excel/sheets.
type SheetsResponse struct {
	Sheets   []string `json:"sheets"`
	Total    int      `json:"total"`
	Filename string   `json:"filename,omitempty"`
}

type ChartData struct {
	Labels     []string `json:"labels"`
	Successful []int    `json:"successful"`
	Failed     []int    `json:"failed"`
	Dates      []string `json:"dates"`
}

// UploadStats is consumed by the charting screen; the console only relays it.
type UploadStats struct {
	TotalUploads    int       `json:"total_uploads"`
	TotalSuccessful int       `json:"total_successful"`
	TotalFailed     int       `json:"total_failed"`
	ChartData       ChartData `json:"chart_data"`
}
