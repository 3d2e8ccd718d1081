package transfer

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/moyoez/excel-console/tool"
	"github.com/moyoez/excel-console/types"
)

// DefaultLogLimit is the page size used when callers pass a non-positive limit.
const DefaultLogLimit = 50

// ValidateFile asks the backend to check extension and size of file.
func (c *Client) ValidateFile(ctx context.Context, file types.SelectedFile) (*types.ValidationResponse, error) {
	url, err := tool.BuildValidateFileURL(c.baseURL)
	if err != nil {
		return nil, err
	}
	var response types.ValidationResponse
	if err := c.postFile(ctx, "validate-file", url, file, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// ListSheets returns the sheet names of the file last seen by the backend.
func (c *Client) ListSheets(ctx context.Context) (*types.SheetsResponse, error) {
	url, err := tool.BuildSheetsURL(c.baseURL)
	if err != nil {
		return nil, err
	}
	var response types.SheetsResponse
	if err := c.getJSON(ctx, "sheets", url, &response); err != nil {
		return nil, err
	}
	if response.Total == 0 {
		response.Total = len(response.Sheets)
	}
	return &response, nil
}

type previewResponse struct {
	TotalRows   int              `json:"total_rows"`
	HasErrors   bool             `json:"has_errors"`
	Rows        []map[string]any `json:"rows"`
	PrivateRows []map[string]any `json:"private_rows"`
	PreviewRows []map[string]any `json:"preview_rows"`
	SheetName   string           `json:"sheet_name"`
}

// Preview sends file for a non-persisting structural and row-level check.
func (c *Client) Preview(ctx context.Context, file types.SelectedFile) (*types.PreviewResult, error) {
	url, err := tool.BuildPreviewURL(c.baseURL)
	if err != nil {
		return nil, err
	}
	var response previewResponse
	if err := c.postFile(ctx, "preview", url, file, nil, &response); err != nil {
		return nil, err
	}

	raw := response.Rows
	if raw == nil {
		raw = response.PrivateRows
	}
	if raw == nil {
		raw = response.PreviewRows
	}

	result := &types.PreviewResult{
		FileID:    file.ID,
		TotalRows: response.TotalRows,
		Rows:      make([]types.PreviewRow, 0, len(raw)),
		HasErrors: response.HasErrors,
		SheetName: response.SheetName,
	}
	for _, r := range raw {
		row := decodePreviewRow(r)
		if !row.IsValid {
			result.HasErrors = true
		}
		result.Rows = append(result.Rows, row)
	}
	tool.DefaultLogger.Debugf("Preview of %s: %d rows, %d invalid in window", file.Name, result.TotalRows, result.InvalidRows())
	return result, nil
}

// decodePreviewRow splits a loosely typed row into its known fields and
// the extension map. IsValid always equals len(Errors) == 0.
func decodePreviewRow(raw map[string]any) types.PreviewRow {
	var row types.PreviewRow
	explicitInvalid := false
	for key, value := range raw {
		switch key {
		case "row_number":
			row.RowNumber = toInt(value)
		case "name":
			row.Name = toString(value)
		case "email":
			row.Email = toString(value)
		case "errors":
			if list, ok := value.([]any); ok {
				for _, item := range list {
					if s := toString(item); s != "" {
						row.Errors = append(row.Errors, s)
					}
				}
			}
		case "is_valid":
			if b, ok := value.(bool); ok && !b {
				explicitInvalid = true
			}
		default:
			if row.Extra == nil {
				row.Extra = make(map[string]any)
			}
			row.Extra[key] = value
		}
	}
	if explicitInvalid && len(row.Errors) == 0 {
		row.Errors = []string{"row rejected by server"}
	}
	row.IsValid = len(row.Errors) == 0
	return row
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(math.Round(n))
	case int:
		return n
	case int64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// Upload hands file to the backend for row-by-row processing. onProgress, if
// set, receives the non-decreasing transfer percentage of the request body
// and a final 100 once the backend answered.
func (c *Client) Upload(ctx context.Context, file types.SelectedFile, onProgress func(int)) (*types.UploadOutcome, error) {
	url, err := tool.BuildUploadURL(c.baseURL)
	if err != nil {
		return nil, err
	}
	var outcome types.UploadOutcome
	if err := c.postFile(ctx, "upload", url, file, onProgress, &outcome); err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(100)
	}
	tool.DefaultLogger.Infof("Upload of %s accepted: upload_id=%d total_rows=%d", file.Name, outcome.UploadID, outcome.TotalRows)
	return &outcome, nil
}

// ListLogs returns up to limit upload records in backend order.
func (c *Client) ListLogs(ctx context.Context, limit int) ([]types.UploadLogEntry, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	url, err := tool.BuildLogsURL(c.baseURL, limit)
	if err != nil {
		return nil, err
	}
	var logs []types.UploadLogEntry
	if err := c.getJSON(ctx, "logs", url, &logs); err != nil {
		return nil, err
	}
	for i := range logs {
		logs[i].Status = types.UploadStatusFrom(string(logs[i].Status))
	}
	return logs, nil
}

// GetLog returns one upload record.
func (c *Client) GetLog(ctx context.Context, id int64) (*types.UploadLogEntry, error) {
	url, err := tool.BuildLogURL(c.baseURL, id)
	if err != nil {
		return nil, err
	}
	var entry types.UploadLogEntry
	if err := c.getJSON(ctx, "log", url, &entry); err != nil {
		return nil, err
	}
	entry.Status = types.UploadStatusFrom(string(entry.Status))
	return &entry, nil
}

// Stats returns aggregate upload statistics.
func (c *Client) Stats(ctx context.Context) (*types.UploadStats, error) {
	url, err := tool.BuildStatsURL(c.baseURL)
	if err != nil {
		return nil, err
	}
	var stats types.UploadStats
	if err := c.getJSON(ctx, "stats", url, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health checks the backend /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	url, err := tool.BuildHealthURL(c.baseURL)
	if err != nil {
		return err
	}
	var status struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "health", url, &status); err != nil {
		return err
	}
	if status.Status != "ok" {
		return fmt.Errorf("backend reported status %q", status.Status)
	}
	return nil
}
