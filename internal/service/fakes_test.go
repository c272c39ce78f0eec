package service

import (
	"context"
	"sync"
	"time"

	"github.com/burakkarakan/letter-engine/internal/document"
	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/gateway"
	"github.com/burakkarakan/letter-engine/internal/queue"
	"github.com/burakkarakan/letter-engine/internal/repository"
	"github.com/google/uuid"
)

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.EmailJob
	seen map[string]struct{}

	nextRetrySet   []string
	retryScheduled []string
	createErr      error
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{
		jobs: make(map[string]*domain.EmailJob),
		seen: make(map[string]struct{}),
	}
}

func (r *fakeJobRepo) get(id string) *domain.EmailJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

func (r *fakeJobRepo) CreateBatch(_ context.Context, jobs []*domain.EmailJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, j := range jobs {
		clone := *j
		r.jobs[j.ID] = &clone
	}
	return nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id string) (*domain.EmailJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *j
	return &clone, nil
}

func (r *fakeJobRepo) GetByProviderMessageID(_ context.Context, providerMessageID string) (*domain.EmailJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ProviderMessageID != nil && *j.ProviderMessageID == providerMessageID {
			clone := *j
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeJobRepo) List(_ context.Context, params repository.JobListParams) ([]domain.EmailJob, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EmailJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		if params.Status != nil && j.Status != *params.Status {
			continue
		}
		if params.BatchID != nil && j.BatchID != *params.BatchID {
			continue
		}
		out = append(out, *j)
	}
	return out, int64(len(out)), nil
}

func (r *fakeJobRepo) LockForSending(_ context.Context, id string) (*domain.EmailJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if j.Status != domain.StatusQueued {
		return nil, nil
	}
	j.Status = domain.StatusSending
	clone := *j
	return &clone, nil
}

func (r *fakeJobRepo) MarkSent(_ context.Context, id string, providerMessageID string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != domain.StatusSending {
		return domain.ErrConflict
	}
	j.Status = domain.StatusSent
	j.ProviderMessageID = &providerMessageID
	j.SentAt = &sentAt
	j.StatusChangedAt = sentAt
	return nil
}

func (r *fakeJobRepo) MarkFailed(_ context.Context, id string, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status = domain.StatusFailed
	j.LastError = &lastError
	return nil
}

func (r *fakeJobRepo) ScheduleRetry(_ context.Context, id string, lastError string, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status = domain.StatusQueued
	j.LastError = &lastError
	j.NextRetryAt = &nextRetryAt
	j.RetryCount++
	r.retryScheduled = append(r.retryScheduled, id)
	return nil
}

func (r *fakeJobRepo) SetNextRetryAt(_ context.Context, id string, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != domain.StatusQueued {
		return domain.ErrNotFound
	}
	j.NextRetryAt = &nextRetryAt
	r.nextRetrySet = append(r.nextRetrySet, id)
	return nil
}

func (r *fakeJobRepo) ClearNextRetryAt(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		j.NextRetryAt = nil
	}
	return nil
}

func (r *fakeJobRepo) GetDueForRetry(_ context.Context, limit int) ([]domain.EmailJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	out := make([]domain.EmailJob, 0)
	for _, j := range r.jobs {
		if j.Status == domain.StatusQueued && j.NextRetryAt != nil && !j.NextRetryAt.After(now) {
			out = append(out, *j)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeJobRepo) CancelQueuedByBatch(_ context.Context, batchID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, j := range r.jobs {
		if j.BatchID == batchID && j.Status == domain.StatusQueued {
			j.Status = domain.StatusCanceled
			count++
		}
	}
	return count, nil
}

func (r *fakeJobRepo) ApplyWebhookEvent(_ context.Context, jobID string, event *domain.WebhookEvent) (repository.EventOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[event.ProviderEventID]; dup {
		return repository.EventOutcome{Duplicate: true}, nil
	}
	r.seen[event.ProviderEventID] = struct{}{}

	j, ok := r.jobs[jobID]
	if !ok {
		return repository.EventOutcome{}, domain.ErrNotFound
	}
	if domain.ApplyEvent(j, event) {
		return repository.EventOutcome{Applied: true}, nil
	}
	return repository.EventOutcome{}, nil
}

func (r *fakeJobRepo) GetBatchSummary(_ context.Context, batchID string) ([]repository.StatusCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byStatus := make(map[domain.JobStatus]int)
	for _, j := range r.jobs {
		if j.BatchID == batchID {
			byStatus[j.Status]++
		}
	}
	out := make([]repository.StatusCount, 0, len(byStatus))
	for status, count := range byStatus {
		out = append(out, repository.StatusCount{Status: status, Count: count})
	}
	return out, nil
}

type fakeBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*domain.EmailBatch
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: make(map[string]*domain.EmailBatch)}
}

func (r *fakeBatchRepo) Create(_ context.Context, b *domain.EmailBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *b
	r.batches[b.ID] = &clone
	return nil
}

func (r *fakeBatchRepo) GetByID(_ context.Context, id string) (*domain.EmailBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *b
	return &clone, nil
}

func (r *fakeBatchRepo) UpdateStatus(_ context.Context, id string, status domain.BatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Status = status
	return nil
}

type fakeDocRepo struct {
	mu   sync.Mutex
	docs map[string]*domain.GeneratedDocument
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[string]*domain.GeneratedDocument)}
}

func (r *fakeDocRepo) Create(_ context.Context, d *domain.GeneratedDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *d
	r.docs[d.ID] = &clone
	return nil
}

func (r *fakeDocRepo) GetByID(_ context.Context, id string) (*domain.GeneratedDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *d
	return &clone, nil
}

type fakeEventRepo struct {
	mu        sync.Mutex
	unmatched []*domain.WebhookEvent
	err       error
}

func (r *fakeEventRepo) AppendUnmatched(_ context.Context, e *domain.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	clone := *e
	r.unmatched = append(r.unmatched, &clone)
	return true, nil
}

func (r *fakeEventRepo) GetByJobID(_ context.Context, _ string) ([]domain.WebhookEvent, error) {
	return nil, nil
}

func (r *fakeEventRepo) GetByProviderMessageID(_ context.Context, _ string) ([]domain.WebhookEvent, error) {
	return nil, nil
}

type publishedMessage struct {
	Queue   string
	Message queue.Message
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
	failAfter int
}

func (p *fakePublisher) Publish(_ context.Context, queueName string, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil && len(p.published) >= p.failAfter {
		return p.err
	}
	p.published = append(p.published, publishedMessage{Queue: queueName, Message: msg})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []gateway.OutboundEmail
	resp *gateway.GatewayResponse
	err  error
}

func (g *fakeGateway) Send(_ context.Context, msg gateway.OutboundEmail) (*gateway.GatewayResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, msg)
	if g.err != nil {
		return nil, g.err
	}
	return g.resp, nil
}

type limiterCall struct {
	Key   string
	Limit int
}

type fakeLimiter struct {
	mu    sync.Mutex
	calls []limiterCall
	err   error
}

func (l *fakeLimiter) Allow(_ context.Context, key string, limit int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, limiterCall{Key: key, Limit: limit})
	return true, l.err
}

func (l *fakeLimiter) Wait(_ context.Context, key string, limit int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, limiterCall{Key: key, Limit: limit})
	return l.err
}

type fakeGenerator struct {
	mu     sync.Mutex
	inputs []document.GenerateInput
	err    error
}

func (g *fakeGenerator) Generate(_ context.Context, in document.GenerateInput) (*domain.GeneratedDocument, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.inputs = append(g.inputs, in)
	return &domain.GeneratedDocument{
		ID:           uuid.NewString(),
		LetterTypeID: in.LetterTypeID,
		EntityKey:    in.EntityKey,
		TemplateID:   in.TemplateID,
		SizeBytes:    3,
		Content:      []byte("doc"),
	}, nil
}

type fakeTypeRepo struct {
	lt  *domain.LetterType
	err error
}

func (r *fakeTypeRepo) Create(_ context.Context, _ *domain.LetterType) error { return nil }

func (r *fakeTypeRepo) GetByID(_ context.Context, _ string) (*domain.LetterType, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.lt, nil
}

func (r *fakeTypeRepo) GetByKey(_ context.Context, _ string) (*domain.LetterType, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.lt, nil
}

func (r *fakeTypeRepo) ExistsByKey(_ context.Context, _ string) (bool, error) { return true, nil }

func (r *fakeTypeRepo) List(_ context.Context) ([]domain.LetterType, error) { return nil, nil }

func (r *fakeTypeRepo) AddField(_ context.Context, _ *domain.FieldDefinition) error { return nil }

func (r *fakeTypeRepo) SetActive(_ context.Context, _ string, _ bool) error { return nil }

func activeType() *domain.LetterType {
	return &domain.LetterType{
		ID:       "lt-1",
		TypeKey:  "warning_letter",
		IsActive: true,
		Fields: []domain.FieldDefinition{
			{FieldKey: "employee_name"},
		},
	}
}
