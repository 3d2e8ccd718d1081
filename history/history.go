// Package history reads the persisted upload logs of the backend.
package history

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/excel-console/tool"
	"github.com/moyoez/excel-console/types"
)

// DefaultLimit is the page size used when a caller passes no limit.
const DefaultLimit = 50

// Source is the backend side of the log endpoints.
type Source interface {
	ListLogs(ctx context.Context, limit int) ([]types.UploadLogEntry, error)
	GetLog(ctx context.Context, id int64) (*types.UploadLogEntry, error)
}

// Client lists upload logs and caches finished entries for detail lookups.
// Entries are kept in backend order; nothing is re-sorted here.
type Client struct {
	src     Source
	limit   int
	details *ttlworker.Cache[int64, *types.UploadLogEntry]

	mu   sync.RWMutex
	last []types.UploadLogEntry
}

// New creates a client. limit <= 0 means DefaultLimit.
func New(src Source, limit int, cacheTTL time.Duration) *Client {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Client{
		src:     src,
		limit:   limit,
		details: ttlworker.NewCache[int64, *types.UploadLogEntry](cacheTTL),
	}
}

// List fetches up to limit entries. Failures are logged and returned; the
// previously fetched page stays available through Last.
func (c *Client) List(ctx context.Context, limit int) ([]types.UploadLogEntry, error) {
	if limit <= 0 {
		limit = c.limit
	}
	entries, err := c.src.ListLogs(ctx, limit)
	if err != nil {
		tool.DefaultLogger.Warnf("[History] failed to list upload logs: %v", err)
		return nil, fmt.Errorf("list upload logs: %w", err)
	}
	for i := range entries {
		c.remember(entries[i])
	}

	c.mu.Lock()
	c.last = slices.Clone(entries)
	c.mu.Unlock()
	tool.DefaultLogger.Debugf("[History] fetched %d upload logs (limit %d)", len(entries), limit)
	return entries, nil
}

// Last returns the most recent successful List result.
func (c *Client) Last() []types.UploadLogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.last)
}

// Get returns one log entry. Completed and failed entries are served from
// cache; pending and processing ones are always fetched again.
func (c *Client) Get(ctx context.Context, id int64) (*types.UploadLogEntry, error) {
	if cached := c.details.Get(id); cached != nil {
		entry := *cached
		return &entry, nil
	}
	entry, err := c.src.GetLog(ctx, id)
	if err != nil {
		tool.DefaultLogger.Warnf("[History] failed to fetch upload log %d: %v", id, err)
		return nil, fmt.Errorf("get upload log %d: %w", id, err)
	}
	c.remember(*entry)
	return entry, nil
}

func (c *Client) remember(entry types.UploadLogEntry) {
	if entry.Status != types.UploadCompleted && entry.Status != types.UploadFailed {
		c.details.Delete(entry.ID)
		return
	}
	c.details.Set(entry.ID, &entry)
}
