// Package notify dispatches pipeline notifications asynchronously through
// a pluggable transport, tracking each dispatch as a pollable job record.
package notify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"resultscore/internal/core"
)

// JobStatus describes the lifecycle stage of a dispatch job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobSending   JobStatus = "sending"
	JobDelivered JobStatus = "delivered"
	JobFailed    JobStatus = "failed"
)

// Job tracks one notification dispatch request.
type Job struct {
	ID           string            `json:"id"`
	Notification core.Notification `json:"notification"`
	Status       JobStatus         `json:"status"`
	Attempts     int               `json:"attempts"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

func (j Job) copy() Job {
	cp := j
	cp.Notification.Recipients = append([]core.Recipient(nil), j.Notification.Recipients...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// Transport delivers one notification. Implementations wrap email, SMS, or
// portal gateways.
type Transport interface {
	Deliver(ctx context.Context, n core.Notification) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, n core.Notification) error

// Deliver calls the wrapped function.
func (f TransportFunc) Deliver(ctx context.Context, n core.Notification) error { return f(ctx, n) }

// Dispatcher queues notifications and delivers them on a background
// goroutine. It satisfies the pipeline's Notifier contract; delivery
// outcomes live on the job record, never on the caller's path.
type Dispatcher struct {
	transport Transport
	logger    core.Logger
	retries   int

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ core.Notifier = (*Dispatcher)(nil)

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger injects a logger for delivery failures.
func WithLogger(l core.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithRetries sets how many delivery attempts a job gets before failing.
func WithRetries(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.retries = n
		}
	}
}

// NewDispatcher constructs a dispatcher around a transport.
func NewDispatcher(transport Transport, opts ...DispatcherOption) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		transport: transport,
		retries:   3,
		queue:     make(chan string, 64),
		jobs:      make(map[string]*Job),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins processing queued notifications.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()
}

// Stop signals the worker to halt and waits for in-flight deliveries.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case id := <-d.queue:
			d.process(id)
		}
	}
}

// Dispatch enqueues a notification and returns immediately. The only
// synchronous failure is a full queue.
func (d *Dispatcher) Dispatch(_ context.Context, n core.Notification) error {
	if n.Type == "" {
		return fmt.Errorf("notification type required")
	}
	now := time.Now().UTC()
	job := Job{
		ID:           newJobID(),
		Notification: n,
		Status:       JobQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	d.mu.Lock()
	d.jobs[job.ID] = &job
	d.mu.Unlock()

	select {
	case d.queue <- job.ID:
		return nil
	default:
		d.mu.Lock()
		delete(d.jobs, job.ID)
		d.mu.Unlock()
		return fmt.Errorf("notification queue full")
	}
}

// Job returns a snapshot of one dispatch job.
func (d *Dispatcher) Job(id string) (Job, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	job, ok := d.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

// Jobs returns snapshots of all dispatch jobs, ordered by creation time.
func (d *Dispatcher) Jobs() []Job {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Job, 0, len(d.jobs))
	for _, job := range d.jobs {
		out = append(out, job.copy())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (d *Dispatcher) process(id string) {
	d.mu.RLock()
	job, ok := d.jobs[id]
	var notification core.Notification
	if ok {
		notification = job.copy().Notification
	}
	d.mu.RUnlock()
	if !ok {
		return
	}

	d.update(id, func(j *Job) {
		j.Status = JobSending
	})

	var lastErr error
	for attempt := 1; attempt <= d.retries; attempt++ {
		d.update(id, func(j *Job) { j.Attempts = attempt })
		if d.transport == nil {
			lastErr = fmt.Errorf("no transport configured")
			break
		}
		if lastErr = d.transport.Deliver(d.ctx, notification); lastErr == nil {
			break
		}
		select {
		case <-d.ctx.Done():
			attempt = d.retries
		default:
		}
	}

	now := time.Now().UTC()
	if lastErr != nil {
		d.update(id, func(j *Job) {
			j.Status = JobFailed
			j.Error = lastErr.Error()
			j.CompletedAt = &now
		})
		if d.logger != nil {
			d.logger.Warn(d.ctx, "notification delivery failed", map[string]any{
				"job":   id,
				"type":  notification.Type,
				"error": lastErr.Error(),
			})
		}
		return
	}
	d.update(id, func(j *Job) {
		j.Status = JobDelivered
		j.Error = ""
		j.CompletedAt = &now
	})
}

func (d *Dispatcher) update(id string, fn func(*Job)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

func newJobID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
