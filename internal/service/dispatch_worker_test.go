package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/burakkarakan/letter-engine/internal/domain"
	"github.com/burakkarakan/letter-engine/internal/gateway"
	"github.com/burakkarakan/letter-engine/internal/queue"
	"github.com/google/uuid"
)

func queuedJob(jobs *fakeJobRepo, batches *fakeBatchRepo, docs *fakeDocRepo) *domain.EmailJob {
	batch := &domain.EmailBatch{
		ID:            uuid.NewString(),
		LetterTypeID:  "lt-1",
		TemplateID:    "tpl-1",
		RatePerMinute: 10,
		TotalCount:    1,
		Status:        domain.BatchStatusProcessing,
	}
	_ = batches.Create(context.Background(), batch)

	var docID *string
	if docs != nil {
		doc := &domain.GeneratedDocument{
			ID:      uuid.NewString(),
			Content: []byte("%PDF-1.7"),
		}
		_ = docs.Create(context.Background(), doc)
		docID = &doc.ID
	}

	job := &domain.EmailJob{
		ID:              uuid.NewString(),
		BatchID:         batch.ID,
		LetterTypeID:    "lt-1",
		Recipient:       "alice@example.com",
		Subject:         "Notice",
		Body:            "hello",
		DocumentID:      docID,
		TrackingID:      uuid.NewString(),
		Status:          domain.StatusQueued,
		MaxRetries:      3,
		StatusChangedAt: time.Now().UTC(),
	}
	_ = jobs.CreateBatch(context.Background(), []*domain.EmailJob{job})
	return job
}

func newTestWorker(
	jobs *fakeJobRepo,
	batches *fakeBatchRepo,
	docs *fakeDocRepo,
	gw *fakeGateway,
	limiter *fakeLimiter,
) *DispatchWorker {
	w, err := NewDispatchWorker(jobs, batches, docs, nil, gw, limiter, 1, nil)
	if err != nil {
		panic(err)
	}
	return w
}

func dispatchMessage(job *domain.EmailJob) queue.Message {
	msg, _ := queue.EncodeDispatchMessage(queue.DispatchMessage{
		JobID:   job.ID,
		BatchID: job.BatchID,
	})
	return msg
}

func TestProcessMessageSuccess(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobRepo()
	batches := newFakeBatchRepo()
	docs := newFakeDocRepo()
	gw := &fakeGateway{resp: &gateway.GatewayResponse{StatusCode: 202, MessageID: "prov-1"}}
	limiter := &fakeLimiter{}
	w := newTestWorker(jobs, batches, docs, gw, limiter)

	job := queuedJob(jobs, batches, docs)

	if err := w.processMessage(context.Background(), dispatchMessage(job)); err != nil {
		t.Fatalf("processMessage() unexpected error: %v", err)
	}

	stored := jobs.get(job.ID)
	if stored.Status != domain.StatusSent {
		t.Fatalf("status = %s, want SENT", stored.Status)
	}
	if stored.ProviderMessageID == nil || *stored.ProviderMessageID != "prov-1" {
		t.Fatalf("ProviderMessageID = %v, want prov-1", stored.ProviderMessageID)
	}
	if stored.SentAt == nil {
		t.Fatal("SentAt should be stamped")
	}

	if len(limiter.calls) != 1 {
		t.Fatalf("limiter calls = %d, want 1", len(limiter.calls))
	}
	if limiter.calls[0].Key != "batch:"+job.BatchID {
		t.Fatalf("limiter key = %q, want batch:%s", limiter.calls[0].Key, job.BatchID)
	}
	if limiter.calls[0].Limit != 10 {
		t.Fatalf("limiter limit = %d, want batch rate 10", limiter.calls[0].Limit)
	}

	if len(gw.sent) != 1 {
		t.Fatalf("gateway sends = %d, want 1", len(gw.sent))
	}
	if gw.sent[0].Attachment == nil {
		t.Fatal("expected rendered document as attachment")
	}
	if gw.sent[0].TrackingID != job.TrackingID {
		t.Fatalf("TrackingID = %q, want %q", gw.sent[0].TrackingID, job.TrackingID)
	}
}

func TestProcessMessageTransientFailureSchedulesRetry(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobRepo()
	batches := newFakeBatchRepo()
	gw := &fakeGateway{err: &gateway.GatewayError{StatusCode: 503, Transient: true}}
	w := newTestWorker(jobs, batches, newFakeDocRepo(), gw, &fakeLimiter{})

	job := queuedJob(jobs, batches, nil)

	if err := w.processMessage(context.Background(), dispatchMessage(job)); err != nil {
		t.Fatalf("processMessage() unexpected error: %v", err)
	}

	stored := jobs.get(job.ID)
	if stored.Status != domain.StatusQueued {
		t.Fatalf("status = %s, want QUEUED for retry", stored.Status)
	}
	if stored.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", stored.RetryCount)
	}
	if stored.NextRetryAt == nil {
		t.Fatal("NextRetryAt should be set")
	}
}

func TestProcessMessagePermanentFailure(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobRepo()
	batches := newFakeBatchRepo()
	gw := &fakeGateway{err: &gateway.GatewayError{StatusCode: 400, Transient: false}}
	w := newTestWorker(jobs, batches, newFakeDocRepo(), gw, &fakeLimiter{})

	job := queuedJob(jobs, batches, nil)

	if err := w.processMessage(context.Background(), dispatchMessage(job)); err != nil {
		t.Fatalf("processMessage() unexpected error: %v", err)
	}

	stored := jobs.get(job.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", stored.Status)
	}
	if stored.LastError == nil {
		t.Fatal("LastError should record the gateway error")
	}
}

func TestProcessMessageRetryExhausted(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobRepo()
	batches := newFakeBatchRepo()
	gw := &fakeGateway{err: &gateway.GatewayError{StatusCode: 503, Transient: true}}
	w := newTestWorker(jobs, batches, newFakeDocRepo(), gw, &fakeLimiter{})

	job := queuedJob(jobs, batches, nil)
	jobs.get(job.ID).RetryCount = 2 // MaxRetries is 3; this attempt is the last

	if err := w.processMessage(context.Background(), dispatchMessage(job)); err != nil {
		t.Fatalf("processMessage() unexpected error: %v", err)
	}

	if got := jobs.get(job.ID).Status; got != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED after exhausted retries", got)
	}
}

func TestProcessMessageSkipsNonQueuedJob(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobRepo()
	batches := newFakeBatchRepo()
	gw := &fakeGateway{resp: &gateway.GatewayResponse{MessageID: "prov-1"}}
	w := newTestWorker(jobs, batches, newFakeDocRepo(), gw, &fakeLimiter{})

	job := queuedJob(jobs, batches, nil)
	jobs.get(job.ID).Status = domain.StatusSent

	if err := w.processMessage(context.Background(), dispatchMessage(job)); err != nil {
		t.Fatalf("processMessage() unexpected error: %v", err)
	}
	if len(gw.sent) != 0 {
		t.Fatal("gateway must not be called for a non-queued job")
	}
}

func TestProcessMessageSkipsCanceledBatch(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobRepo()
	batches := newFakeBatchRepo()
	gw := &fakeGateway{resp: &gateway.GatewayResponse{MessageID: "prov-1"}}
	w := newTestWorker(jobs, batches, newFakeDocRepo(), gw, &fakeLimiter{})

	job := queuedJob(jobs, batches, nil)
	_ = batches.UpdateStatus(context.Background(), job.BatchID, domain.BatchStatusCanceled)

	if err := w.processMessage(context.Background(), dispatchMessage(job)); err != nil {
		t.Fatalf("processMessage() unexpected error: %v", err)
	}
	if len(gw.sent) != 0 {
		t.Fatal("gateway must not be called for a canceled batch")
	}
	if jobs.get(job.ID).Status != domain.StatusQueued {
		t.Fatal("job must not be claimed when its batch is canceled")
	}
}

func TestProcessMessageMalformedPayloadRejected(t *testing.T) {
	t.Parallel()

	w := newTestWorker(newFakeJobRepo(), newFakeBatchRepo(), newFakeDocRepo(), &fakeGateway{}, &fakeLimiter{})

	err := w.processMessage(context.Background(), queue.Message{Body: []byte("{not json")})
	if !errors.Is(err, queue.ErrReject) {
		t.Fatalf("error = %v, want ErrReject", err)
	}
}

func TestProcessMessageMissingJobSkipped(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobRepo()
	batches := newFakeBatchRepo()
	w := newTestWorker(jobs, batches, newFakeDocRepo(), &fakeGateway{}, &fakeLimiter{})

	batch := &domain.EmailBatch{ID: uuid.NewString(), Status: domain.BatchStatusProcessing, RatePerMinute: 10}
	_ = batches.Create(context.Background(), batch)

	msg, _ := queue.EncodeDispatchMessage(queue.DispatchMessage{JobID: uuid.NewString(), BatchID: batch.ID})
	if err := w.processMessage(context.Background(), msg); err != nil {
		t.Fatalf("processMessage() unexpected error: %v", err)
	}
}

func TestComputeRetryDelayBounds(t *testing.T) {
	t.Parallel()

	w := newTestWorker(newFakeJobRepo(), newFakeBatchRepo(), newFakeDocRepo(), &fakeGateway{}, &fakeLimiter{})
	w.randIntn = func(int) int { return 0 }

	if got := w.computeRetryDelay(1); got != baseRetryDelay {
		t.Fatalf("delay(1) = %v, want %v", got, baseRetryDelay)
	}
	if got := w.computeRetryDelay(2); got != 2*baseRetryDelay {
		t.Fatalf("delay(2) = %v, want %v", got, 2*baseRetryDelay)
	}
	if got := w.computeRetryDelay(30); got != maxRetryDelay {
		t.Fatalf("delay(30) = %v, want cap %v", got, maxRetryDelay)
	}

	w.randIntn = func(n int) int { return n - 1 }
	withJitter := w.computeRetryDelay(1)
	if withJitter <= baseRetryDelay || withJitter > baseRetryDelay+time.Duration(maxRetryJitterMillis)*time.Millisecond {
		t.Fatalf("delay with jitter = %v out of range", withJitter)
	}
}
