package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/hookbus/internal/journal"
	"github.com/garyjia/hookbus/pkg/hooks"
	"github.com/garyjia/hookbus/pkg/utils"
)

// DefaultJournalLimit is the page size used when the journal query has no limit
const DefaultJournalLimit = 50

// JournalReader reads recorded hook runs
type JournalReader interface {
	Recent(ctx context.Context, tag string, limit int) ([]journal.Entry, error)
	Totals(ctx context.Context) (map[string]int, error)
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	dispatcher *hooks.Dispatcher
	journal    JournalReader
	logger     *zap.Logger

	// runMu serializes runs and removals issued over HTTP.
	runMu sync.Mutex
}

// NewHandlers creates a new Handlers instance. journal may be nil when the
// journal is disabled.
func NewHandlers(dispatcher *hooks.Dispatcher, journal JournalReader, logger *zap.Logger) *Handlers {
	return &Handlers{
		dispatcher: dispatcher,
		journal:    journal,
		logger:     logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// HookSummary is one entry of the hook listing
type HookSummary struct {
	Tag       string `json:"tag"`
	Callbacks int    `json:"callbacks"`
	Did       int    `json:"did"`
}

// RegistrationResponse describes one attached callback
type RegistrationResponse struct {
	Priority int    `json:"priority"`
	Name     string `json:"name"`
}

// HookResponse describes a single hook
type HookResponse struct {
	Tag           string                 `json:"tag"`
	Registrations []RegistrationResponse `json:"registrations"`
	Did           int                    `json:"did"`
	Doing         bool                   `json:"doing"`
}

// RunRequest is the body of POST /api/v1/hooks/:tag/run
type RunRequest struct {
	Value interface{}   `json:"value"`
	Args  []interface{} `json:"args"`
}

// RunResponse is the result of a run
type RunResponse struct {
	Value interface{} `json:"value"`
	Did   int         `json:"did"`
}

// RemoveResponse reports whether anything was detached
type RemoveResponse struct {
	Removed bool `json:"removed"`
}

// StateResponse describes the running hooks
type StateResponse struct {
	Doing   bool     `json:"doing"`
	Current string   `json:"current,omitempty"`
	Stack   []string `json:"stack"`
}

// JournalResponse lists recorded runs
type JournalResponse struct {
	Entries []journal.Entry `json:"entries"`
	Totals  map[string]int  `json:"totals"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// ListHooks handles GET /api/v1/hooks. Tags that were run but never had
// callbacks are listed with zero callbacks.
func (h *Handlers) ListHooks(c *gin.Context) {
	counts := h.dispatcher.Counts()
	seen := make(map[hooks.Tag]bool)

	summaries := make([]HookSummary, 0, len(counts))
	for _, tag := range h.dispatcher.Tags() {
		seen[tag] = true
		summaries = append(summaries, HookSummary{
			Tag:       string(tag),
			Callbacks: len(h.dispatcher.Registrations(tag)),
			Did:       counts[tag],
		})
	}
	for tag, did := range counts {
		if !seen[tag] {
			summaries = append(summaries, HookSummary{Tag: string(tag), Did: did})
		}
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Tag < summaries[j].Tag })

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    summaries,
	})
}

// GetHook handles GET /api/v1/hooks/:tag
func (h *Handlers) GetHook(c *gin.Context) {
	tag, ok := h.tagParam(c)
	if !ok {
		return
	}

	registrations := h.dispatcher.Registrations(tag)
	response := HookResponse{
		Tag:           string(tag),
		Registrations: make([]RegistrationResponse, 0, len(registrations)),
		Did:           h.dispatcher.Did(tag),
		Doing:         h.dispatcher.DoingTag(tag),
	}
	for _, r := range registrations {
		response.Registrations = append(response.Registrations, RegistrationResponse{
			Priority: r.Priority,
			Name:     r.Name,
		})
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// RunHook handles POST /api/v1/hooks/:tag/run
func (h *Handlers) RunHook(c *gin.Context) {
	tag, ok := h.tagParam(c)
	if !ok {
		return
	}

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Error("Invalid run request", zap.String("tag", string(tag)), zap.Error(err))
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	h.runMu.Lock()
	value, err := h.dispatcher.Run(tag, req.Value, req.Args...)
	did := h.dispatcher.Did(tag)
	h.runMu.Unlock()

	if err != nil {
		h.logger.Error("Hook run failed", zap.String("tag", string(tag)), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, Response{
			Success: false,
			Error:   "run failed: " + err.Error(),
		})
		return
	}

	h.logger.Info("Hook run", zap.String("tag", string(tag)), zap.Int("did", did))

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: RunResponse{
			Value: value,
			Did:   did,
		},
	})
}

// RemoveHook handles DELETE /api/v1/hooks/:tag with an optional priority
// query parameter
func (h *Handlers) RemoveHook(c *gin.Context) {
	tag, ok := h.tagParam(c)
	if !ok {
		return
	}

	var removed bool
	if raw, set := c.GetQuery("priority"); set {
		priority, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   "invalid priority",
			})
			return
		}
		h.runMu.Lock()
		removed = h.dispatcher.RemoveAllAt(tag, priority)
		h.runMu.Unlock()
	} else {
		h.runMu.Lock()
		removed = h.dispatcher.RemoveAll(tag)
		h.runMu.Unlock()
	}

	h.logger.Info("Hook callbacks removed",
		zap.String("tag", string(tag)),
		zap.Bool("removed", removed))

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    RemoveResponse{Removed: removed},
	})
}

// GetState handles GET /api/v1/state
func (h *Handlers) GetState(c *gin.Context) {
	stack := h.dispatcher.Stack()
	response := StateResponse{
		Doing: len(stack) > 0,
		Stack: make([]string, 0, len(stack)),
	}
	for _, tag := range stack {
		response.Stack = append(response.Stack, string(tag))
	}
	if current, ok := h.dispatcher.Current(); ok {
		response.Current = string(current)
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// ListJournal handles GET /api/v1/journal
func (h *Handlers) ListJournal(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "journal is disabled",
		})
		return
	}

	tag := c.Query("tag")
	if tag != "" {
		if err := utils.ValidateTag(tag); err != nil {
			c.JSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   err.Error(),
			})
			return
		}
	}

	limit := DefaultJournalLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err == nil {
			err = utils.ValidateLimit(n)
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   "invalid limit",
			})
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	entries, err := h.journal.Recent(ctx, tag, limit)
	if err != nil {
		h.logger.Error("Failed to read journal", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to read journal",
		})
		return
	}

	totals, err := h.journal.Totals(ctx)
	if err != nil {
		h.logger.Error("Failed to read journal totals", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to read journal",
		})
		return
	}

	if entries == nil {
		entries = []journal.Entry{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: JournalResponse{
			Entries: entries,
			Totals:  totals,
		},
	})
}

// tagParam validates the :tag path parameter and writes a 400 response when
// it is unusable
func (h *Handlers) tagParam(c *gin.Context) (hooks.Tag, bool) {
	tag := c.Param("tag")
	if err := utils.ValidateTag(tag); err != nil {
		h.logger.Warn("Invalid tag", zap.String("tag", tag), zap.Error(err))
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   err.Error(),
		})
		return "", false
	}
	return hooks.Tag(tag), true
}
