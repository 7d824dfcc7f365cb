package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
	"github.com/ahrav/mailcourier/internal/infra/dispatcher"
	membus "github.com/ahrav/mailcourier/internal/infra/eventbus/memory"
	memguard "github.com/ahrav/mailcourier/internal/infra/idempotency/memory"
	memstore "github.com/ahrav/mailcourier/internal/infra/storage/delivery/memory"
	"github.com/ahrav/mailcourier/internal/infra/templates"
	"github.com/ahrav/mailcourier/pkg/common/logger"
)

// fakeTransport records sends and fails according to a scripted error
// sequence. Once the script runs out, sends succeed (or fail with failAll).
type fakeTransport struct {
	mu      sync.Mutex
	sends   []notification.Message
	to      []notification.Recipient
	errs    []error
	failAll error
}

func (t *fakeTransport) Send(_ context.Context, to notification.Recipient, msg notification.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.errs) > 0 {
		err := t.errs[0]
		t.errs = t.errs[1:]
		if err != nil {
			return err
		}
	} else if t.failAll != nil {
		return t.failAll
	}
	t.sends = append(t.sends, msg)
	t.to = append(t.to, to)
	return nil
}

func (t *fakeTransport) sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sends)
}

// stubMetrics counts metric increments by name so tests can assert on
// pipeline outcomes without an OTLP backend.
type stubMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newStubMetrics() *stubMetrics { return &stubMetrics{counts: make(map[string]int)} }

func (m *stubMetrics) inc(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
}

func (m *stubMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

func (m *stubMetrics) IncMessagePublished(context.Context, string) { m.inc("published") }
func (m *stubMetrics) IncMessageConsumed(context.Context, string)  { m.inc("consumed") }
func (m *stubMetrics) IncPublishError(context.Context, string)     { m.inc("publish_errors") }
func (m *stubMetrics) IncConsumeError(context.Context, string)     { m.inc("consume_errors") }
func (m *stubMetrics) IncDelivered(context.Context, string)        { m.inc("delivered") }
func (m *stubMetrics) IncRetriesScheduled(context.Context, string) { m.inc("retries_scheduled") }
func (m *stubMetrics) IncDeadLettered(context.Context, string)     { m.inc("dead_lettered") }
func (m *stubMetrics) IncDuplicatesSuppressed(context.Context, string) {
	m.inc("duplicates_suppressed")
}
func (m *stubMetrics) IncFallbackDelivered(context.Context, string) { m.inc("fallback_delivered") }
func (m *stubMetrics) IncFallbackFailed(context.Context, string)    { m.inc("fallback_failed") }
func (m *stubMetrics) IncNoticesPublished(context.Context, string)  { m.inc("notices_published") }
func (m *stubMetrics) IncPublishFallbacks(context.Context, string)  { m.inc("publish_fallbacks") }

// pipelineHarness wires a complete in-memory pipeline: broker, guard, record
// store, dead-letter sink, real renderer and handlers, fallback, worker
// pool, and publisher service.
type pipelineHarness struct {
	broker    *membus.Broker
	guard     *memguard.Guard
	store     *memstore.RecordStore
	sink      *memstore.DeadLetterSink
	transport *fakeTransport
	metrics   *stubMetrics
	svc       *Service
}

// fastRetries keeps backoff delays negligible so tests run in milliseconds.
func fastRetries(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Base:        time.Millisecond,
		Multiplier:  2,
		MaxDelay:    10 * time.Millisecond,
	}
}

func newPipelineHarness(t *testing.T, policy RetryPolicy, transport *fakeTransport) *pipelineHarness {
	t.Helper()
	ctx := context.Background()
	tracer := noop.NewTracerProvider().Tracer("")
	log := logger.Noop()
	metrics := newStubMetrics()

	renderer, err := templates.NewRenderer()
	require.NoError(t, err)

	disp := dispatcher.New(tracer, log)
	handlers := NewHandlers(HandlerConfig{
		ServerBaseURL: "https://app.example.com",
		SupportEmail:  "support@example.com",
	}, renderer, transport)
	for _, h := range handlers {
		disp.Register(ctx, h)
	}

	broker := membus.NewBroker()
	guard := memguard.NewGuard()
	store := memstore.NewRecordStore()
	sink := memstore.NewDeadLetterSink()

	fallback := NewFallbackDeliverer(disp, guard, store, log, tracer, metrics)
	pool := NewWorkerPool(broker, disp, guard, store, sink, fallback, 4, log, tracer, metrics,
		WithRetryPolicy(policy))
	require.NoError(t, pool.Start(ctx))

	return &pipelineHarness{
		broker:    broker,
		guard:     guard,
		store:     store,
		sink:      sink,
		transport: transport,
		metrics:   metrics,
		svc:       NewService(broker, fallback, log, tracer, metrics),
	}
}

func testRecipient() notification.Recipient {
	return notification.Recipient{Email: "alice@example.com", Name: "Alice"}
}

func envelopeFor(n *notification.Notice) events.EventEnvelope {
	return events.EventEnvelope{
		Type:      n.Type,
		Key:       n.ID.String(),
		Timestamp: n.CreatedAt,
		Payload:   n,
	}
}

func TestPipelineDeliversExactlyOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	transport := &fakeTransport{}
	h := newPipelineHarness(t, fastRetries(5), transport)

	id, err := h.svc.SendAccountUnlocked(ctx, testRecipient())
	require.NoError(t, err)

	rec, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDelivered, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, 1, transport.sent())
	assert.Contains(t, transport.sends[0].Subject, "Account Unlocked")
}

func TestPipelineSuppressesBrokerRedelivery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	transport := &fakeTransport{}
	h := newPipelineHarness(t, fastRetries(5), transport)

	n := notification.NewNotice(notification.EventTypeAccountUnlocked, testRecipient(), map[string]any{})
	evt := envelopeFor(&n)
	require.NoError(t, h.broker.Publish(ctx, evt))
	require.Equal(t, 1, transport.sent())

	// Simulate an uncommitted offset being replayed after a rebalance.
	require.NoError(t, h.broker.Redeliver(ctx, evt))

	assert.Equal(t, 1, transport.sent(), "redelivery must not reach the recipient")
	assert.Equal(t, 1, h.metrics.count("duplicates_suppressed"))

	rec, err := h.store.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDelivered, rec.Status)
}

func TestPipelineRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	transient := notification.TransientDelivery(errors.New("smtp timeout"))
	transport := &fakeTransport{errs: []error{transient, transient, transient, transient}}
	h := newPipelineHarness(t, fastRetries(5), transport)

	id, err := h.svc.SendAccountLocked(ctx, testRecipient())
	require.NoError(t, err)

	rec, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDelivered, rec.Status)
	assert.Equal(t, 5, rec.Attempts, "four transient failures then success")
	assert.Equal(t, 1, transport.sent())
	assert.Equal(t, 4, h.metrics.count("retries_scheduled"))
	assert.Empty(t, h.sink.Letters())
}

func TestPipelineDeadLettersAfterExhaustionThenFallbackDelivers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	transient := notification.TransientDelivery(errors.New("smtp timeout"))
	// Two pipeline attempts fail; the single fallback attempt succeeds.
	transport := &fakeTransport{errs: []error{transient, transient}}
	h := newPipelineHarness(t, fastRetries(2), transport)

	id, err := h.svc.SendAccountUnlocked(ctx, testRecipient())
	require.NoError(t, err)

	rec, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFallbackDelivered, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, 1, transport.sent())
	assert.Equal(t, 1, h.metrics.count("dead_lettered"))
	assert.Equal(t, 1, h.metrics.count("fallback_delivered"))
	require.Len(t, h.sink.Letters(), 1)
	assert.Equal(t, id, h.sink.Letters()[0].NoticeID)
}

func TestPipelineFallbackFailureReleasesClaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	transport := &fakeTransport{failAll: notification.TransientDelivery(errors.New("smtp down"))}
	h := newPipelineHarness(t, fastRetries(2), transport)

	id, err := h.svc.SendAccountUnlocked(ctx, testRecipient())
	require.NoError(t, err)

	rec, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFallbackFailed, rec.Status)
	assert.Equal(t, 1, h.metrics.count("fallback_failed"))
	assert.Zero(t, transport.sent())

	_, claimed := h.guard.ClaimedAt(id)
	assert.False(t, claimed, "a failed fallback must not hold the claim")
}

func TestPipelinePermanentErrorSkipsRetryBudget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	permanent := notification.PermanentDelivery(errors.New("inactive recipient"))
	transport := &fakeTransport{failAll: permanent}
	h := newPipelineHarness(t, fastRetries(5), transport)

	id, err := h.svc.SendAccountUnlocked(ctx, testRecipient())
	require.NoError(t, err)

	rec, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts, "permanent failures must not consume the retry budget")
	assert.Equal(t, notification.StatusFallbackFailed, rec.Status)
	assert.Zero(t, h.metrics.count("retries_scheduled"))
	assert.Len(t, h.sink.Letters(), 1)
}

func TestPipelineMissingPayloadFieldIsPermanent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	transport := &fakeTransport{}
	h := newPipelineHarness(t, fastRetries(5), transport)

	// Verification notices need user_id and verification_token; an empty
	// payload can never render.
	id, err := h.svc.Emit(ctx, notification.EventTypeAccountVerification, testRecipient(), map[string]any{})
	require.NoError(t, err)

	rec, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
	assert.Zero(t, transport.sent())
	assert.Zero(t, h.metrics.count("retries_scheduled"))
	require.Len(t, h.sink.Letters(), 1)
	assert.Contains(t, h.sink.Letters()[0].Reason, "verification_url")
}

func TestPipelineBrokerOutageFallsBackToDirectSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	transport := &fakeTransport{}
	h := newPipelineHarness(t, fastRetries(5), transport)

	h.broker.SetPublishFailure(true)
	id, err := h.svc.SendRoleUpgrade(ctx, testRecipient(), "MANAGER")
	require.NoError(t, err, "a broker outage must not fail the caller")

	assert.Equal(t, 1, transport.sent())
	assert.Contains(t, transport.sends[0].Body, "manager with additional privileges")
	assert.Equal(t, 1, h.metrics.count("publish_fallbacks"))

	rec, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFallbackDelivered, rec.Status)
}

func TestPipelineBrokerOutageWithFallbackFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	transport := &fakeTransport{failAll: notification.TransientDelivery(errors.New("smtp down"))}
	h := newPipelineHarness(t, fastRetries(5), transport)

	h.broker.SetPublishFailure(true)
	_, err := h.svc.SendAccountLocked(ctx, testRecipient())
	require.Error(t, err, "both paths failing must surface to the caller")
}

func TestServiceRejectsUnknownEventType(t *testing.T) {
	t.Parallel()
	transport := &fakeTransport{}
	h := newPipelineHarness(t, fastRetries(5), transport)

	_, err := h.svc.Emit(context.Background(), "password_reset", testRecipient(), map[string]any{})
	require.ErrorIs(t, err, notification.ErrUnknownEventType)
	assert.Zero(t, transport.sent())
}

func TestServiceRejectsMalformedRecipient(t *testing.T) {
	t.Parallel()
	transport := &fakeTransport{}
	h := newPipelineHarness(t, fastRetries(5), transport)

	_, err := h.svc.SendAccountLocked(context.Background(),
		notification.Recipient{Email: "not-an-address"})
	require.ErrorIs(t, err, notification.ErrInvalidEvent)
	assert.Zero(t, transport.sent())
}

func TestWorkerPoolSinksInvalidPayloads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	transport := &fakeTransport{}
	h := newPipelineHarness(t, fastRetries(5), transport)

	evt := events.EventEnvelope{
		Type:    notification.EventTypeAccountLocked,
		Payload: "not a notice",
	}
	require.NoError(t, h.broker.Redeliver(ctx, evt))

	assert.Zero(t, transport.sent())
	require.Len(t, h.sink.Letters(), 1)
	assert.Contains(t, h.sink.Letters()[0].Reason, "invalid event")
}

func TestPipelineVerificationLinkAssembly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	transport := &fakeTransport{}
	h := newPipelineHarness(t, fastRetries(5), transport)

	_, err := h.svc.SendVerification(ctx, testRecipient(), "42", "tok123")
	require.NoError(t, err)

	require.Equal(t, 1, transport.sent())
	assert.Contains(t, transport.sends[0].Body, "https://app.example.com/verify-email/42/tok123")
}

func TestRetryPolicyDelaysAreMonotonic(t *testing.T) {
	t.Parallel()
	p := DefaultRetryPolicy()

	var prev time.Duration
	for attempt := 1; attempt < 20; attempt++ {
		d := p.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, p.MaxDelay)
		prev = d
	}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(4))
}
