package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

// mockClaimRepository is a mock implementation of domain.ClaimRepository
type mockClaimRepository struct {
	mu                sync.Mutex
	unpublished       []*domain.Claim
	listErr           error
	markPublishedFunc func(id uuid.UUID) error
	listCutoff        time.Time
	listLimit         int
	published         []uuid.UUID
}

func (m *mockClaimRepository) Create(ctx context.Context, claim *domain.Claim) (uuid.UUID, error) {
	return uuid.Nil, errors.New("not implemented")
}

func (m *mockClaimRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	return nil, domain.ErrClaimNotFound
}

func (m *mockClaimRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.ClaimStatus, reason string, at time.Time) (bool, error) {
	return false, nil
}

func (m *mockClaimRepository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]*domain.Claim, error) {
	return nil, nil
}

func (m *mockClaimRepository) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markPublishedFunc != nil {
		if err := m.markPublishedFunc(id); err != nil {
			return err
		}
	}
	m.published = append(m.published, id)
	return nil
}

func (m *mockClaimRepository) ListUnpublished(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCutoff = olderThan
	m.listLimit = limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.unpublished, nil
}

// mockTransactionManager runs fn directly, counts calls and records
// whether the last transaction would have committed
type mockTransactionManager struct {
	calls     int
	committed bool
}

func (m *mockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	err := fn(ctx)
	m.committed = err == nil
	return err
}

type mockPublisher struct {
	mu     sync.Mutex
	failOn map[uuid.UUID]bool
	events []*domain.ClaimSubmittedEvent
}

func (m *mockPublisher) PublishClaimSubmitted(ctx context.Context, event *domain.ClaimSubmittedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[event.ClaimID] {
		return domain.Transient(errors.New("broker unavailable"))
	}
	m.events = append(m.events, event)
	return nil
}

type mockRecorder struct{ total int }

func (m *mockRecorder) Republished(n int) { m.total += n }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func (c fixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func unpublishedClaim() *domain.Claim {
	return &domain.Claim{
		ID:          uuid.New(),
		MemberID:    uuid.New(),
		PolicyID:    uuid.New(),
		ClaimType:   "Medical",
		Amount:      decimal.RequireFromString("80.00"),
		Status:      domain.ClaimStatusPending,
		SubmittedAt: now.Add(-10 * time.Minute),
	}
}

func newTestRepublisher(repo *mockClaimRepository, publisher *mockPublisher, recorder Recorder) (*Republisher, *mockTransactionManager) {
	txManager := &mockTransactionManager{}
	cfg := Config{Interval: time.Minute, GracePeriod: time.Minute, BatchSize: 50}
	return NewRepublisher(repo, txManager, publisher, cfg, fixedClock{now}, recorder, nil), txManager
}

func TestRepublisher_RunOnce(t *testing.T) {
	claims := []*domain.Claim{unpublishedClaim(), unpublishedClaim()}
	repo := &mockClaimRepository{unpublished: claims}
	publisher := &mockPublisher{}
	recorder := &mockRecorder{}
	r, txManager := newTestRepublisher(repo, publisher, recorder)

	n, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 republished claims, got %d", n)
	}
	if txManager.calls != 1 {
		t.Errorf("expected the sweep to run in one transaction, got %d", txManager.calls)
	}
	if !repo.listCutoff.Equal(now.Add(-time.Minute)) || repo.listLimit != 50 {
		t.Errorf("unexpected selection cutoff=%v limit=%d", repo.listCutoff, repo.listLimit)
	}
	if len(repo.published) != 2 || repo.published[0] != claims[0].ID {
		t.Errorf("expected both claims to be marked published, got %v", repo.published)
	}
	if publisher.events[1].ClaimID != claims[1].ID || !publisher.events[1].Amount.Equal(claims[1].Amount) {
		t.Errorf("unexpected event %+v", publisher.events[1])
	}
	if recorder.total != 2 {
		t.Errorf("expected recorder to count 2, got %d", recorder.total)
	}
}

func TestRepublisher_RunOnce_StopsAtPublishFailure(t *testing.T) {
	claims := []*domain.Claim{unpublishedClaim(), unpublishedClaim(), unpublishedClaim()}
	repo := &mockClaimRepository{unpublished: claims}
	publisher := &mockPublisher{failOn: map[uuid.UUID]bool{claims[1].ID: true}}
	recorder := &mockRecorder{}
	r, txManager := newTestRepublisher(repo, publisher, recorder)

	n, err := r.RunOnce(context.Background())
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if n != 1 || recorder.total != 1 {
		t.Errorf("expected 1 republished claim, got n=%d recorded=%d", n, recorder.total)
	}
	if len(publisher.events) != 1 {
		t.Errorf("expected the sweep to stop after the failure, got %d publishes", len(publisher.events))
	}
	if !txManager.committed {
		t.Error("expected the marks made before the failure to be committed")
	}
	if len(repo.published) != 1 || repo.published[0] != claims[0].ID {
		t.Errorf("expected only the first claim to be marked, got %v", repo.published)
	}
}

func TestRepublisher_RunOnce_Empty(t *testing.T) {
	repo := &mockClaimRepository{}
	publisher := &mockPublisher{}
	recorder := &mockRecorder{}
	r, _ := newTestRepublisher(repo, publisher, recorder)

	n, err := r.RunOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected nothing to do, got n=%d err=%v", n, err)
	}
	if recorder.total != 0 {
		t.Errorf("expected no recorded republishes, got %d", recorder.total)
	}
}

func TestRepublisher_RunOnce_ListFailure(t *testing.T) {
	repo := &mockClaimRepository{listErr: domain.Transient(errors.New("connection refused"))}
	r, _ := newTestRepublisher(repo, &mockPublisher{}, nil)

	if _, err := r.RunOnce(context.Background()); !errors.Is(err, domain.ErrTransient) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestRepublisher_Run_StopsOnCancel(t *testing.T) {
	repo := &mockClaimRepository{unpublished: []*domain.Claim{unpublishedClaim()}}
	publisher := &mockPublisher{}
	r, _ := newTestRepublisher(repo, publisher, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.events) == 0 {
		t.Error("expected an immediate sweep on start")
	}
}

func TestRepublisher_RunOnce_MarkPublishedFailure(t *testing.T) {
	claims := []*domain.Claim{unpublishedClaim(), unpublishedClaim()}
	repo := &mockClaimRepository{
		unpublished: claims,
		markPublishedFunc: func(uuid.UUID) error {
			return domain.Transient(errors.New("connection reset"))
		},
	}
	publisher := &mockPublisher{}
	recorder := &mockRecorder{}
	r, txManager := newTestRepublisher(repo, publisher, recorder)

	n, err := r.RunOnce(context.Background())
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if txManager.committed {
		t.Error("expected the transaction to roll back")
	}
	// The event went out but nothing was committed, so the claim is sent again next sweep.
	if n != 0 || recorder.total != 0 {
		t.Errorf("expected no committed republishes, got n=%d recorded=%d", n, recorder.total)
	}
	if len(publisher.events) != 1 {
		t.Errorf("expected one publish before the failure, got %d", len(publisher.events))
	}
}
