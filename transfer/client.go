package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/moyoez/excel-console/tool"
	"github.com/moyoez/excel-console/types"
)

// Client talks to the spreadsheet backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a backend client. A nil httpClient uses tool.GetHttpClient().
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = tool.GetHttpClient()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends req and decodes a 2xx JSON body into out. Any failure is a *RemoteError.
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return &RemoteError{Op: op, Err: fmt.Errorf("%s cancelled: %w", op, ctxErr)}
		}
		return &RemoteError{Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", readErr)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail := extractDetail(body)
		tool.DefaultLogger.Debugf("%s failed with %s: %s", op, resp.Status, detail)
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Detail: detail}
	}

	if out == nil {
		return nil
	}
	if len(body) == 0 {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s response body is empty", op)}
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse %s response: %w", op, err)}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, op, out)
}

// multipartFile renders file as a single "file" form part.
func multipartFile(file types.SelectedFile) (*bytes.Buffer, string, error) {
	if file.Path == "" {
		return nil, "", fmt.Errorf("file %q has no local path", file.Name)
	}
	src, err := os.Open(file.Path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", file.Path, err)
	}
	defer src.Close()

	body := bytes.NewBuffer(make([]byte, 0, file.Size+1024))
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.Name)))
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", file.Path, err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (c *Client) postFile(ctx context.Context, op, url string, file types.SelectedFile, onProgress func(int), out any) error {
	body, contentType, err := multipartFile(file)
	if err != nil {
		return err
	}
	size := int64(body.Len())
	var reader io.Reader = body
	if onProgress != nil {
		reader = &progressReader{r: body, total: size, onProgress: onProgress}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	return c.do(req, op, out)
}

// progressReader reports the percentage of the request body handed to the transport.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	last       int
	onProgress func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct > p.last {
			p.last = pct
			p.onProgress(pct)
		}
	}
	return n, err
}
