package controllers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/excel-console/console"
	"github.com/moyoez/excel-console/intake"
	"github.com/moyoez/excel-console/tool"
	"github.com/moyoez/excel-console/transfer"
	"github.com/moyoez/excel-console/types"
)

// RemoteFiles are the backend checks that do not change console state.
type RemoteFiles interface {
	ValidateFile(ctx context.Context, file types.SelectedFile) (*types.ValidationResponse, error)
	ListSheets(ctx context.Context) (*types.SheetsResponse, error)
}

// ConsoleController exposes one Console to the local web UI.
type ConsoleController struct {
	console      *console.Console
	remote       RemoteFiles
	uploadFolder string
}

func NewConsoleController(c *console.Console, remote RemoteFiles, uploadFolder string) *ConsoleController {
	if uploadFolder == "" {
		uploadFolder = "uploads"
	}
	return &ConsoleController{
		console:      c,
		remote:       remote,
		uploadFolder: uploadFolder,
	}
}

type selectRequest struct {
	Path string `json:"path" binding:"required"`
}

// respond answers a console action with the resulting state.
func (ctrl *ConsoleController) respond(c *gin.Context, err error) {
	snap := ctrl.console.View().Snapshot()
	if err == nil {
		c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(snap))
		return
	}

	status := http.StatusInternalServerError
	var verr *intake.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, console.ErrNoFile):
		status = http.StatusBadRequest
	case errors.Is(err, console.ErrBusy), errors.Is(err, console.ErrCannotUpload):
		status = http.StatusConflict
	case errors.Is(err, console.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	msg := snap.ErrorMessage
	if msg == "" {
		msg = err.Error()
	}
	c.JSON(status, tool.FastReturnState(msg, snap))
}

// HandleState returns the current console state.
// GET /api/console/v1/state
func (ctrl *ConsoleController) HandleState(c *gin.Context) {
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(ctrl.console.View().Snapshot()))
}

// HandleSelect selects a spreadsheet: either an uploaded multipart "file",
// stored in the upload folder, or a JSON {"path"} already on disk.
// POST /api/console/v1/select
func (ctrl *ConsoleController) HandleSelect(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		ctrl.selectUploaded(c)
		return
	}

	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body: "+err.Error()))
		return
	}
	ctrl.respond(c, ctrl.console.Select(req.Path))
}

func (ctrl *ConsoleController) selectUploaded(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing form file: file"))
		return
	}
	// refuse before anything touches the disk
	if _, err := intake.Select(header.Filename, header.Size); err != nil {
		ctrl.respond(c, ctrl.console.SelectFile(types.SelectedFile{Name: header.Filename, Size: header.Size}))
		return
	}

	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read form file"))
		return
	}
	defer src.Close()

	path, err := tool.SaveStream(c.Request.Context(), ctrl.uploadFolder, header.Filename, src)
	if err != nil {
		tool.DefaultLogger.Errorf("[Console] failed to store %s: %v", header.Filename, err)
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to store file"))
		return
	}
	tool.DefaultLogger.Debugf("[Console] stored %s at %s", header.Filename, path)
	ctrl.respond(c, ctrl.console.SelectFile(types.SelectedFile{Name: header.Filename, Path: path, Size: header.Size}))
}

// POST /api/console/v1/preview
func (ctrl *ConsoleController) HandlePreview(c *gin.Context) {
	ctrl.respond(c, ctrl.console.Preview())
}

// POST /api/console/v1/commit
func (ctrl *ConsoleController) HandleCommit(c *gin.Context) {
	ctrl.respond(c, ctrl.console.Commit())
}

// POST /api/console/v1/acknowledge
func (ctrl *ConsoleController) HandleAcknowledge(c *gin.Context) {
	ctrl.respond(c, ctrl.console.Acknowledge())
}

// POST /api/console/v1/reset
func (ctrl *ConsoleController) HandleReset(c *gin.Context) {
	ctrl.respond(c, ctrl.console.Reset())
}

// HandleValidate asks the backend to check the selected file without previewing it.
// POST /api/console/v1/validate
func (ctrl *ConsoleController) HandleValidate(c *gin.Context) {
	file := ctrl.console.View().File
	if file == nil || file.Path == "" {
		c.JSON(http.StatusConflict, tool.FastReturnError("No file selected"))
		return
	}
	resp, err := ctrl.remote.ValidateFile(c.Request.Context(), *file)
	if err != nil {
		c.JSON(remoteStatus(err), tool.FastReturnError(transfer.UserMessage(err, "Failed to validate the file.")))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(resp))
}

// HandleSheets lists the sheets of the selected workbook locally, or with
// ?source=remote the sheets of the file last seen by the backend.
// GET /api/console/v1/sheets
func (ctrl *ConsoleController) HandleSheets(c *gin.Context) {
	if c.Query("source") == "remote" {
		resp, err := ctrl.remote.ListSheets(c.Request.Context())
		if err != nil {
			c.JSON(remoteStatus(err), tool.FastReturnError(transfer.UserMessage(err, "Failed to list sheets.")))
			return
		}
		c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(resp))
		return
	}

	file := ctrl.console.View().File
	if file == nil || file.Path == "" {
		c.JSON(http.StatusConflict, tool.FastReturnError("No file selected"))
		return
	}
	sheets, err := intake.Sheets(file.Path)
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(types.SheetsResponse{
		Sheets:   sheets,
		Total:    len(sheets),
		Filename: file.Name,
	}))
}

// HandleTemplate downloads an empty import workbook.
// GET /api/console/v1/template
func (ctrl *ConsoleController) HandleTemplate(c *gin.Context) {
	var buf bytes.Buffer
	if err := intake.WriteTemplate(&buf); err != nil {
		tool.DefaultLogger.Errorf("[Console] failed to build template: %v", err)
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to build template"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+intake.TemplateFileName+`"`)
	c.Data(http.StatusOK, types.MIMETypeXLSX, buf.Bytes())
}

// remoteStatus maps a backend failure to the status returned to the web UI.
func remoteStatus(err error) int {
	var remote *transfer.RemoteError
	if errors.As(err, &remote) && remote.StatusCode == http.StatusNotFound {
		return http.StatusNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func parseLimit(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
