package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
	"github.com/arturoeanton/icd11-rag-ollama/internal/service"
)

// Job states.
const (
	JobRunning  = "running"
	JobComplete = "complete"
	JobError    = "error"
)

// JobStatus represents the current state of an indexing job.
type JobStatus struct {
	ID          string                   `json:"id"`
	Status      string                   `json:"status"` // running, complete, error
	Stage       string                   `json:"stage"`
	Progress    int                      `json:"progress"`
	Total       int                      `json:"total"`
	Stats       *service.PreprocessStats `json:"stats,omitempty"`
	Error       string                   `json:"error,omitempty"`
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt time.Time                `json:"completed_at,omitempty"`
}

func (j JobStatus) done() bool {
	return j.Status == JobComplete || j.Status == JobError
}

// JobTracker manages indexing jobs in memory.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*JobStatus
	subs map[string][]chan JobStatus // subscribers per job
}

// NewJobTracker creates a new job tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{
		jobs: make(map[string]*JobStatus),
		subs: make(map[string][]chan JobStatus),
	}
}

// TryCreateJob registers a running job unless another job is still running.
func (t *JobTracker) TryCreateJob(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runningLocked() {
		return false
	}
	t.jobs[id] = &JobStatus{
		ID:        id,
		Status:    JobRunning,
		StartedAt: time.Now(),
	}
	return true
}

// Running reports whether any job has not finished yet.
func (t *JobTracker) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.runningLocked()
}

func (t *JobTracker) runningLocked() bool {
	for _, j := range t.jobs {
		if !j.done() {
			return true
		}
	}
	return false
}

// UpdateProgress records stage progress and notifies subscribers.
func (t *JobTracker) UpdateProgress(id, stage string, progress, total int) {
	t.update(id, func(job *JobStatus) {
		job.Stage = stage
		job.Progress = progress
		job.Total = total
	})
}

// Finish marks a job complete, or failed when err is not nil.
func (t *JobTracker) Finish(id string, stats service.PreprocessStats, err error) {
	t.update(id, func(job *JobStatus) {
		job.Stats = &stats
		job.CompletedAt = time.Now()
		if err != nil {
			job.Status = JobError
			job.Error = err.Error()
			return
		}
		job.Status = JobComplete
	})
}

func (t *JobTracker) update(id string, fn func(*JobStatus)) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	fn(job)
	snapshot := *job
	subs := append([]chan JobStatus(nil), t.subs[id]...)
	t.mu.Unlock()

	// Notify subscribers without blocking; final states are re-read by the stream.
	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// GetJob returns a snapshot of a job status, or port.ErrJobNotFound.
func (t *JobTracker) GetJob(id string) (*JobStatus, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", port.ErrJobNotFound, id)
	}
	snapshot := *job
	return &snapshot, nil
}

// Subscribe returns a channel that receives job updates.
func (t *JobTracker) Subscribe(id string) chan JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan JobStatus, 10)
	t.subs[id] = append(t.subs[id], ch)
	return ch
}

// Unsubscribe removes a channel from subscribers.
func (t *JobTracker) Unsubscribe(id string, ch chan JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.subs[id]
	for i, s := range subs {
		if s == ch {
			t.subs[id] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	tracker *JobTracker
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(tracker *JobTracker) *JobsHandler {
	return &JobsHandler{tracker: tracker}
}

// Register sets up job routes.
func (h *JobsHandler) Register(router fiber.Router) {
	jobs := router.Group("/jobs")
	jobs.Get("/:id", h.GetStatus)
	jobs.Get("/:id/stream", h.StreamSSE)
}

// GetStatus returns the current job status.
func (h *JobsHandler) GetStatus(c fiber.Ctx) error {
	job, err := h.tracker.GetJob(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(job)
}

// StreamSSE streams job updates via Server-Sent Events.
func (h *JobsHandler) StreamSSE(c fiber.Ctx) error {
	id := c.Params("id")

	job, err := h.tracker.GetJob(id)
	if err != nil {
		return errorResponse(c, err)
	}

	setSSEHeaders(c)

	// If already complete, just return the final status
	if job.done() {
		data, _ := json.Marshal(job)
		return c.SendString(fmt.Sprintf("event: %s\ndata: %s\n\n", job.Status, string(data)))
	}

	ch := h.tracker.Subscribe(id)

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.tracker.Unsubscribe(id, ch)

		data, _ := json.Marshal(job)
		fmt.Fprintf(w, "event: progress\ndata: %s\n\n", string(data))
		if err := w.Flush(); err != nil {
			return
		}

		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		timeout := time.After(30 * time.Minute)
		for {
			var update JobStatus
			select {
			case update = <-ch:
			case <-ticker.C:
				// catches final states dropped by a full subscriber buffer
				latest, err := h.tracker.GetJob(id)
				if err != nil {
					return
				}
				update = *latest
			case <-timeout:
				slog.Warn("SSE timeout", "job_id", id)
				return
			}

			data, _ := json.Marshal(update)
			eventType := "progress"
			if update.done() {
				eventType = update.Status
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, string(data))
			if err := w.Flush(); err != nil {
				return
			}
			if update.done() {
				return
			}
		}
	})
}

func setSSEHeaders(c fiber.Ctx) {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
}
