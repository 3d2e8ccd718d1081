// Package console drives one spreadsheet import from selection to settled
// upload. All state changes happen on a single loop goroutine; network calls
// and push messages come back to it as events.
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moyoez/excel-console/intake"
	"github.com/moyoez/excel-console/progress"
	"github.com/moyoez/excel-console/tool"
	"github.com/moyoez/excel-console/transfer"
	"github.com/moyoez/excel-console/types"
)

var (
	ErrBusy         = errors.New("an upload is in progress")
	ErrNoFile       = errors.New("no file selected")
	ErrCannotUpload = errors.New("upload is not possible in the current state")
	ErrClosed       = errors.New("console closed")
)

// Backend is the part of the backend client the console drives.
type Backend interface {
	Preview(ctx context.Context, file types.SelectedFile) (*types.PreviewResult, error)
	Upload(ctx context.Context, file types.SelectedFile, onProgress func(int)) (*types.UploadOutcome, error)
}

// LogLister supplies the upload history.
type LogLister interface {
	List(ctx context.Context, limit int) ([]types.UploadLogEntry, error)
}

// PushChannel is the long-lived processing-progress connection.
type PushChannel interface {
	Open(ctx context.Context) error
	Close() error
}

type Options struct {
	PushURL   string
	Reconnect progress.ReconnectPolicy

	// SettleWindow defaults to progress.DefaultSettleWindow.
	SettleWindow time.Duration
	LogLimit     int

	// NewChannel replaces the websocket push channel. onDrop must be called
	// when the connection is lost for good.
	NewChannel func(handler func(types.PushMessage), onDrop func(error)) PushChannel
}

const (
	msgPreviewFailed    = "Failed to generate the preview."
	msgPreviewHasErrors = "The file contains errors. Review the rows marked as invalid."
	msgCannotUpload     = "Cannot upload a file with validation errors."
	msgUploadFailed     = "Failed to upload the file."
	msgProcessingFailed = "Error during upload."
	msgChannelFailed    = "Could not connect to the progress channel."
	msgChannelLost      = "Lost the connection to the progress channel."
)

// Console is one screen lifetime of the import flow.
type Console struct {
	backend Backend
	logs    LogLister
	opts    Options
	channel PushChannel

	ctx    context.Context
	cancel context.CancelFunc

	events    chan func()
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	// owned by the loop goroutine
	st        View
	rec       *progress.Reconciler
	uploadSeq int
	settle    *time.Timer
	revision  uint64

	mu   sync.RWMutex
	view View
	subs map[chan View]struct{}
}

// New starts a console and its loop. The push channel is not dialed until
// the first commit.
func New(backend Backend, logs LogLister, opts Options) *Console {
	if opts.SettleWindow <= 0 {
		opts.SettleWindow = progress.DefaultSettleWindow
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Console{
		backend:  backend,
		logs:     logs,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan func(), 64),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		rec:      progress.NewReconciler(),
		subs:     make(map[chan View]struct{}),
	}
	c.st = View{Stage: StageIdle, Progress: c.rec.State()}
	c.view = c.st

	newChannel := opts.NewChannel
	if newChannel == nil {
		newChannel = func(handler func(types.PushMessage), onDrop func(error)) PushChannel {
			return progress.NewChannel(opts.PushURL, opts.Reconnect, handler, onDrop)
		}
	}
	c.channel = newChannel(c.handlePush, c.handleDrop)

	go c.loop()
	c.RefreshLogs()
	return c
}

func (c *Console) loop() {
	defer close(c.loopDone)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.quit:
			if c.settle != nil {
				c.settle.Stop()
			}
			return
		}
	}
}

// post queues fn on the loop. It reports false once the console is closed.
func (c *Console) post(fn func()) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.events <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// call runs fn on the loop and waits for its result.
func (c *Console) call(fn func() error) error {
	reply := make(chan error, 1)
	if !c.post(func() { reply <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.loopDone:
		return ErrClosed
	}
}

// View returns the latest published snapshot.
func (c *Console) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Subscribe returns a channel that receives the latest snapshot after each
// change. Slow readers only miss intermediate snapshots. The channel is closed
// by the returned cancel func or by Close.
func (c *Console) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)
	c.mu.Lock()
	select {
	case <-c.quit:
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	c.subs[ch] = struct{}{}
	ch <- c.view
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
}

// Close tears the console down: the loop stops, pending timers are dropped,
// subscribers are closed and the push channel is released. It is safe to call
// more than once.
func (c *Console) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.quit)
		<-c.loopDone
		err = c.channel.Close()

		c.mu.Lock()
		for ch := range c.subs {
			delete(c.subs, ch)
			close(ch)
		}
		c.mu.Unlock()
		tool.DefaultLogger.Infof("[Console] closed")
	})
	return err
}

func (c *Console) publish() {
	c.revision++
	c.st.Progress = c.rec.State()
	c.st.Revision = c.revision
	v := c.st

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = v
	for ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func (c *Console) clearMessages() {
	c.st.ErrorMessage = ""
	c.st.SuccessMessage = ""
}

func (c *Console) fail(message string) {
	c.st.Stage = StageFailed
	c.st.SuccessMessage = ""
	c.st.ErrorMessage = message
}

// Select validates the file at path and makes it the current selection.
func (c *Console) Select(path string) error {
	file, err := intake.Open(path)
	return c.call(func() error { return c.selectFile(file, err) })
}

// SelectFile selects a file that is already on disk under file.Path.
func (c *Console) SelectFile(file types.SelectedFile) error {
	checked, err := intake.Select(file.Name, file.Size)
	if err == nil {
		checked.Path = file.Path
	}
	return c.call(func() error { return c.selectFile(checked, err) })
}

func (c *Console) selectFile(file types.SelectedFile, err error) error {
	if c.st.inFlight() {
		return ErrBusy
	}
	c.clearMessages()
	if err != nil {
		tool.DefaultLogger.Warnf("[Console] selection rejected: %v", err)
		c.st.ErrorMessage = err.Error()
		c.publish()
		return err
	}
	c.rec.Reset()
	c.st.File = &file
	c.st.Preview = nil
	c.st.Outcome = nil
	c.st.Stage = StageFileSelected
	tool.DefaultLogger.Infof("[Console] selected %s (%d bytes)", file.Name, file.Size)
	c.publish()
	return nil
}

// Preview asks the backend to analyse the selected file. The result arrives
// asynchronously and is dropped if the selection changed meanwhile.
func (c *Console) Preview() error {
	return c.call(func() error {
		if c.st.File == nil {
			return ErrNoFile
		}
		if c.st.inFlight() || c.st.Stage == StagePreviewing {
			return ErrBusy
		}
		file := *c.st.File
		c.clearMessages()
		c.st.Preview = nil
		c.st.Stage = StagePreviewing
		c.publish()

		go func() {
			result, err := c.backend.Preview(c.ctx, file)
			c.post(func() { c.previewDone(file.ID, result, err) })
		}()
		return nil
	})
}

func (c *Console) previewDone(fileID string, result *types.PreviewResult, err error) {
	if c.st.File == nil || c.st.File.ID != fileID || c.st.Stage != StagePreviewing {
		tool.DefaultLogger.Debugf("[Console] discarding stale preview for file %s", fileID)
		return
	}
	c.st.Stage = StageFileSelected
	if err != nil {
		tool.DefaultLogger.Errorf("[Console] preview failed: %v", err)
		c.st.ErrorMessage = transfer.UserMessage(err, msgPreviewFailed)
		c.publish()
		return
	}

	result.FileID = fileID
	c.st.Preview = result
	if c.st.HasPreviewErrors() {
		c.st.ErrorMessage = msgPreviewHasErrors
	} else {
		c.st.Stage = StageReady
		c.st.SuccessMessage = fmt.Sprintf("Preview generated: %d rows detected.", result.TotalRows)
	}
	c.publish()
}

// Commit uploads the previewed file. It does nothing and returns
// ErrCannotUpload unless CanUpload holds.
func (c *Console) Commit() error {
	return c.call(func() error {
		if !c.st.CanUpload() {
			if c.st.HasPreviewErrors() {
				c.clearMessages()
				c.st.ErrorMessage = msgCannotUpload
				c.publish()
			}
			return ErrCannotUpload
		}
		file := *c.st.File
		c.uploadSeq++
		seq := c.uploadSeq
		c.clearMessages()
		c.st.Outcome = nil
		c.rec.Begin(c.st.Preview.TotalRows)
		c.st.Stage = StageUploading
		tool.DefaultLogger.Infof("[Console] uploading %s", file.Name)
		c.publish()

		go c.runUpload(seq, file)
		return nil
	})
}

func (c *Console) runUpload(seq int, file types.SelectedFile) {
	if err := c.channel.Open(c.ctx); err != nil {
		tool.DefaultLogger.Errorf("[Console] %v", err)
		c.post(func() { c.transportFailed(seq, err, msgChannelFailed) })
		return
	}
	outcome, err := c.backend.Upload(c.ctx, file, func(pct int) {
		c.post(func() { c.transferProgress(seq, pct) })
	})
	if err != nil {
		tool.DefaultLogger.Errorf("[Console] upload of %s failed: %v", file.Name, err)
		c.post(func() { c.transportFailed(seq, err, transfer.UserMessage(err, msgUploadFailed)) })
		return
	}
	c.post(func() { c.uploadAccepted(seq, outcome) })
}

func (c *Console) transferProgress(seq, pct int) {
	if seq != c.uploadSeq {
		return
	}
	if c.rec.ObserveTransfer(pct) {
		c.publish()
	}
}

func (c *Console) transportFailed(seq int, err error, message string) {
	if seq != c.uploadSeq || !c.rec.TransportFailed(err, message) {
		return
	}
	c.fail(message)
	c.publish()
}

func (c *Console) uploadAccepted(seq int, outcome *types.UploadOutcome) {
	if seq != c.uploadSeq {
		return
	}
	c.st.Outcome = outcome
	if c.st.Stage == StageUploading {
		c.st.SuccessMessage = fmt.Sprintf("Upload started: %d rows will be processed.", outcome.TotalRows)
	}
	c.publish()
}

func (c *Console) handlePush(msg types.PushMessage) {
	c.post(func() { c.onPush(msg) })
}

func (c *Console) onPush(msg types.PushMessage) {
	if !c.rec.ObservePush(msg) {
		return
	}
	if c.st.Stage == StageUploading {
		switch c.rec.State().Phase {
		case types.PhaseCompleted:
			c.complete()
		case types.PhaseFailed:
			c.fail(c.processingMessage())
		}
	}
	c.publish()
}

func (c *Console) handleDrop(err error) {
	c.post(func() { c.channelLost(err) })
}

// channelLost fails the active upload: its completion can no longer arrive.
func (c *Console) channelLost(err error) {
	if c.st.Stage != StageUploading || !c.rec.TransportFailed(err, msgChannelLost) {
		return
	}
	tool.DefaultLogger.Errorf("[Console] progress channel lost during upload: %v", err)
	c.fail(msgChannelLost)
	c.publish()
}

func (c *Console) processingMessage() string {
	var perr *progress.ProcessingError
	if errors.As(c.rec.Failure(), &perr) && perr.Reason != "" {
		return perr.Reason
	}
	return msgProcessingFailed
}

func (c *Console) complete() {
	state := c.rec.State()
	c.st.Stage = StageSettling
	c.st.ErrorMessage = ""
	if state.CountsReported {
		c.st.SuccessMessage = fmt.Sprintf("Upload completed: %d successful, %d failed", state.SuccessfulCount, state.FailedCount)
	} else {
		c.st.SuccessMessage = fmt.Sprintf("Upload completed: %d rows processed", c.processedTotal())
	}
	tool.DefaultLogger.Infof("[Console] %s", c.st.SuccessMessage)

	seq := c.uploadSeq
	c.settle = time.AfterFunc(c.opts.SettleWindow, func() {
		c.post(func() { c.settled(seq) })
	})
}

func (c *Console) processedTotal() int {
	if c.st.Outcome != nil {
		return c.st.Outcome.TotalRows
	}
	return c.st.TotalPreviewRows()
}

// settled returns to the idle baseline once the completion summary was shown.
// The success message stays until the next operation.
func (c *Console) settled(seq int) {
	if seq != c.uploadSeq || c.st.Stage != StageSettling {
		return
	}
	c.settle = nil
	c.resetUpload()
	c.publish()
	c.refreshLogs()
}

func (c *Console) resetUpload() {
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
	c.uploadSeq++
	c.rec.Reset()
	c.st.File = nil
	c.st.Preview = nil
	c.st.Outcome = nil
	c.st.Stage = StageIdle
}

// Acknowledge clears the selection after a failed upload. In any other stage
// it does nothing.
func (c *Console) Acknowledge() error {
	return c.call(func() error {
		if c.st.Stage != StageFailed {
			return nil
		}
		c.clearMessages()
		c.resetUpload()
		c.publish()
		return nil
	})
}

// Reset returns to the idle baseline. It is refused while bytes are still
// being sent or processed.
func (c *Console) Reset() error {
	return c.call(func() error {
		if c.st.Stage == StageUploading {
			return ErrBusy
		}
		c.clearMessages()
		c.resetUpload()
		c.publish()
		return nil
	})
}

// RefreshLogs reloads the upload history in the background. A failure only
// marks the logs unavailable.
func (c *Console) RefreshLogs() {
	c.post(c.refreshLogs)
}

func (c *Console) refreshLogs() {
	if c.st.LogsLoading {
		return
	}
	c.st.LogsLoading = true
	c.publish()
	go func() {
		entries, err := c.logs.List(c.ctx, c.opts.LogLimit)
		c.post(func() { c.logsDone(entries, err) })
	}()
}

func (c *Console) logsDone(entries []types.UploadLogEntry, err error) {
	c.st.LogsLoading = false
	if err != nil {
		c.st.LogsUnavailable = true
	} else {
		c.st.Logs = entries
		c.st.LogsUnavailable = false
	}
	c.publish()
}
