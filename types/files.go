package types

// SelectedFile is a local spreadsheet that passed intake checks.
// ID changes on every selection, even for the same path.
type SelectedFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"-"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType"`
}

// Spreadsheet MIME types sent with multipart parts.
const (
	MIMETypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMETypeXLS  = "application/vnd.ms-excel"
)

// PreviewRow is one row of a server preview. Name and Email are the
// well-known columns; any other column lands in Extra.
type PreviewRow struct {
	RowNumber int            `json:"rowNumber,omitempty"`
	Name      string         `json:"name,omitempty"`
	Email     string         `json:"email,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
	Errors    []string       `json:"errors,omitempty"`
	IsValid   bool           `json:"isValid"`
}

// PreviewResult is the immutable outcome of one preview call.
type PreviewResult struct {
	FileID    string       `json:"fileId"`
	TotalRows int          `json:"totalRows"`
	Rows      []PreviewRow `json:"rows"`
	HasErrors bool         `json:"hasErrors"`
	SheetName string       `json:"sheetName,omitempty"`
}

// InvalidRows counts rows whose IsValid flag is false.
func (p *PreviewResult) InvalidRows() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, row := range p.Rows {
		if !row.IsValid {
			n++
		}
	}
	return n
}
