package transfer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// RemoteError is a transport-level failure of a backend call: either the
// request never got an answer (Err) or the backend answered non-2xx.
type RemoteError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("%s failed (%d): %s", e.Op, e.StatusCode, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s failed with status %d", e.Op, e.StatusCode)
	}
	return e.Op + " failed"
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// UserMessage returns the server-supplied detail of err, or fallback.
func UserMessage(err error, fallback string) string {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Detail != "" {
		return remote.Detail
	}
	return fallback
}

// extractDetail reads the error detail the backend puts in its JSON body. It
// handles {"detail": "..."}, {"detail": {"errors": [...]}} and the
// [{"msg": "..."}] list produced by request validation.
func extractDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload map[string]any
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if detail, ok := payload["detail"]; ok {
		return detailString(detail)
	}
	if msg, ok := payload["error"].(string); ok {
		return msg
	}
	return ""
}

func detailString(v any) string {
	switch d := v.(type) {
	case string:
		return d
	case map[string]any:
		if errs, ok := d["errors"]; ok {
			return detailString(errs)
		}
		if msg, ok := d["message"].(string); ok {
			return msg
		}
	case []any:
		parts := make([]string, 0, len(d))
		for _, item := range d {
			switch it := item.(type) {
			case string:
				parts = append(parts, it)
			case map[string]any:
				if msg, ok := it["msg"].(string); ok {
					parts = append(parts, msg)
				}
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}
