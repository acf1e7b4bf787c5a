package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/lorrc/issues-insights-backend/internal/core/domain"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockStatsRepository is a mock implementation of ports.StatsRepository
type MockStatsRepository struct {
	mock.Mock
}

func NewMockStatsRepository() *MockStatsRepository {
	return &MockStatsRepository{}
}

func (m *MockStatsRepository) RecomputeDaily(ctx context.Context, day time.Time) (*domain.DailyStats, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DailyStats), args.Error(1)
}

func (m *MockStatsRepository) ListDaily(ctx context.Context, from, to time.Time) ([]*domain.DailyStats, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DailyStats), args.Error(1)
}

func (m *MockStatsRepository) PruneBefore(ctx context.Context, day time.Time) (int64, error) {
	args := m.Called(ctx, day)
	return args.Get(0).(int64), args.Error(1)
}

// MockStatsService is a mock implementation of ports.StatsService
type MockStatsService struct {
	mock.Mock
}

func NewMockStatsService() *MockStatsService {
	return &MockStatsService{}
}

func (m *MockStatsService) Recompute(ctx context.Context) (*domain.DailyStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DailyStats), args.Error(1)
}

func (m *MockStatsService) History(ctx context.Context, days int) ([]*domain.DailyStats, error) {
	args := m.Called(ctx, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DailyStats), args.Error(1)
}

func (m *MockStatsService) Prune(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockHealthChecker is a mock implementation of ports.HealthChecker
type MockHealthChecker struct {
	mock.Mock
}

func NewMockHealthChecker() *MockHealthChecker {
	return &MockHealthChecker{}
}

func (m *MockHealthChecker) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockConnectionCounter is a mock implementation of ports.ConnectionCounter
type MockConnectionCounter struct {
	mock.Mock
}

func NewMockConnectionCounter() *MockConnectionCounter {
	return &MockConnectionCounter{}
}

func (m *MockConnectionCounter) Count() int {
	args := m.Called()
	return args.Int(0)
}

// MockJobRunner is a mock implementation of ports.JobRunner
type MockJobRunner struct {
	mock.Mock
}

func NewMockJobRunner() *MockJobRunner {
	return &MockJobRunner{}
}

func (m *MockJobRunner) Statuses() []ports.JobSnapshot {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]ports.JobSnapshot)
}

func (m *MockJobRunner) RunNow(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// MockTokenValidator is a mock implementation of ports.TokenValidator
type MockTokenValidator struct {
	mock.Mock
}

func NewMockTokenValidator() *MockTokenValidator {
	return &MockTokenValidator{}
}

func (m *MockTokenValidator) ValidateUserToken(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

// RecordingNotifier is an EventNotifier that keeps every event it receives.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(event domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

// Events returns a copy of the events received so far.
func (n *RecordingNotifier) Events() []domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.Event, len(n.events))
	copy(out, n.events)
	return out
}

var (
	_ ports.StatsRepository   = (*MockStatsRepository)(nil)
	_ ports.StatsService      = (*MockStatsService)(nil)
	_ ports.HealthChecker     = (*MockHealthChecker)(nil)
	_ ports.ConnectionCounter = (*MockConnectionCounter)(nil)
	_ ports.JobRunner         = (*MockJobRunner)(nil)
	_ ports.TokenValidator    = (*MockTokenValidator)(nil)
	_ ports.EventNotifier     = (*RecordingNotifier)(nil)
)
