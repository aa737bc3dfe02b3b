package internal

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// UploadQueue stages local files and drives each one through submission to
// the knowledge store independently of the others.
type UploadQueue struct {
	store DocumentStore

	mu          sync.Mutex
	items       []*PendingUpload // head is the most recently staged
	lastRefresh []Document

	submits *taskSet
}

// NewUploadQueue creates a new UploadQueue
func NewUploadQueue(store DocumentStore) *UploadQueue {
	return &UploadQueue{
		store:   store,
		submits: newTaskSet(),
	}
}

// Stage adds one ready entry per file at the head of the queue and returns them
func (q *UploadQueue) Stage(files ...File) []PendingUpload {
	q.mu.Lock()
	defer q.mu.Unlock()

	staged := make([]*PendingUpload, 0, len(files))
	out := make([]PendingUpload, 0, len(files))
	for _, f := range files {
		id := newUploadID(f)
		for q.findLocked(id) != nil {
			id = newUploadID(f)
		}
		item := &PendingUpload{ID: id, File: f, Status: UploadReady}
		staged = append(staged, item)
		out = append(out, *item)
	}
	q.items = append(staged, q.items...)
	return out
}

// Remove drops an entry regardless of status. An uploaded document stays in
// the remote store; an in-flight submit is cancelled and its result ignored.
func (q *UploadQueue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.ID == id {
			q.submits.cancel(id)
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return ErrUploadNotFound
}

// Submit uploads one entry. Only ready and error entries may be submitted;
// anything else returns ErrNotSubmittable without touching the entry. A
// backend failure moves the entry to error and is returned as *UploadError.
// A success moves it to sent and refreshes the document listing once.
func (q *UploadQueue) Submit(ctx context.Context, id string) error {
	q.mu.Lock()
	item := q.findLocked(id)
	if item == nil {
		q.mu.Unlock()
		return ErrUploadNotFound
	}
	if !item.Status.Submittable() {
		q.mu.Unlock()
		return ErrNotSubmittable
	}
	item.Status = UploadSending
	item.ErrorDetail = ""
	file := item.File
	q.mu.Unlock()

	submitCtx, release := q.submits.start(ctx, id)
	err := q.store.InsertDocument(submitCtx, file)
	release()

	q.mu.Lock()
	// Removed while in flight: do not resurrect it.
	item = q.findLocked(id)
	if item == nil {
		q.mu.Unlock()
		LogDebug("Dropping result for removed upload %s", id)
		return ErrUploadNotFound
	}
	if err != nil {
		item.Status = UploadFailed
		item.ErrorDetail = errorDetail(err)
		detail := item.ErrorDetail
		q.mu.Unlock()
		LogWarn("Upload of %s failed: %s", file.Name, detail)
		return &UploadError{UploadID: id, FileName: file.Name, Detail: detail, Err: err}
	}
	item.Status = UploadSent
	q.mu.Unlock()

	LogInfo("Uploaded %s", file.Name)
	q.refresh(ctx)
	return nil
}

// SubmitAll submits every submittable entry concurrently and waits for all
// of them to settle. It returns the per-entry outcome keyed by upload id.
func (q *UploadQueue) SubmitAll(ctx context.Context) map[string]error {
	q.mu.Lock()
	var ids []string
	for _, item := range q.items {
		if item.Status.Submittable() {
			ids = append(ids, item.ID)
		}
	}
	q.mu.Unlock()

	var mu sync.Mutex
	results := make(map[string]error, len(ids))
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			err := q.Submit(ctx, id)
			mu.Lock()
			results[id] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// refresh re-fetches the document listing after a successful upload
func (q *UploadQueue) refresh(ctx context.Context) {
	docs, err := q.store.ListDocuments(ctx)
	if err != nil {
		LogWarn("Failed to refresh document list: %v", err)
		return
	}
	q.mu.Lock()
	q.lastRefresh = docs
	q.mu.Unlock()
}

// Documents fetches the current remote listing. Nothing is cached.
func (q *UploadQueue) Documents(ctx context.Context) ([]Document, error) {
	return q.store.ListDocuments(ctx)
}

// LastRefresh returns the listing captured by the latest post-upload refresh
func (q *UploadQueue) LastRefresh() []Document {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Document, len(q.lastRefresh))
	copy(out, q.lastRefresh)
	return out
}

// Items returns a snapshot of the queue, most recently staged first
func (q *UploadQueue) Items() []PendingUpload {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingUpload, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, *item)
	}
	return out
}

// Get returns a snapshot of one entry
func (q *UploadQueue) Get(id string) (PendingUpload, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item := q.findLocked(id); item != nil {
		return *item, true
	}
	return PendingUpload{}, false
}

func (q *UploadQueue) findLocked(id string) *PendingUpload {
	for _, item := range q.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}
