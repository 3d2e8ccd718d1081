package tool

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const excelAPIPrefix = "/api/excel"

func buildExcelURL(base, path string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + excelAPIPrefix + path)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %v", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// BuildValidateFileURL builds the /validate-file URL.
func BuildValidateFileURL(base string) (string, error) {
	return buildExcelURL(base, "/validate-file", nil)
}

// BuildSheetsURL builds the /sheets URL.
func BuildSheetsURL(base string) (string, error) {
	return buildExcelURL(base, "/sheets", nil)
}

// BuildPreviewURL builds the /preview URL.
func BuildPreviewURL(base string) (string, error) {
	return buildExcelURL(base, "/preview", nil)
}

// BuildUploadURL builds the /upload URL.
func BuildUploadURL(base string) (string, error) {
	return buildExcelURL(base, "/upload", nil)
}

// BuildLogsURL builds the /logs URL with the limit query parameter.
func BuildLogsURL(base string, limit int) (string, error) {
	return buildExcelURL(base, "/logs", url.Values{"limit": []string{strconv.Itoa(limit)}})
}

// BuildLogURL builds the /logs/{id} URL.
func BuildLogURL(base string, id int64) (string, error) {
	return buildExcelURL(base, "/logs/"+strconv.FormatInt(id, 10), nil)
}

// BuildStatsURL builds the /stats URL.
func BuildStatsURL(base string) (string, error) {
	return buildExcelURL(base, "/stats", nil)
}

// BuildHealthURL builds the backend /health URL, which lives outside /api/excel.
func BuildHealthURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/health")
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %v", err)
	}
	return u.String(), nil
}
