package lock_service

import (
	"context"
	"sync"
	"time"

	"github.com/AnishMulay/sandsync/internal/log_service"
	"github.com/AnishMulay/sandsync/internal/metrics"
)

// DefaultLeaseTTL bounds a lease whose mutating call never arrives.
const DefaultLeaseTTL = 30 * time.Second

type InMemoryLockService struct {
	// sem guards leases. A channel rather than a mutex so that waiting for
	// the table can be abandoned when the caller's deadline passes.
	sem     chan struct{}
	leases  map[string]Lease
	// holds counts the guarded calls in flight per filename for the
	// current holder.
	holds   map[string]int
	ttl     time.Duration
	now     func() time.Time
	ls      log_service.LogService
	metrics metrics.ServerMetrics
}

func NewInMemoryLockService(ttl time.Duration, ls log_service.LogService, m metrics.ServerMetrics) *InMemoryLockService {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &InMemoryLockService{
		sem:     make(chan struct{}, 1),
		leases:  make(map[string]Lease),
		holds:   make(map[string]int),
		ttl:     ttl,
		now:     time.Now,
		ls:      ls,
		metrics: m,
	}
}

func (s *InMemoryLockService) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *InMemoryLockService) unlock() {
	<-s.sem
}

func (s *InMemoryLockService) Acquire(ctx context.Context, filename, clientID string) (Lease, error) {
	if filename == "" {
		return Lease{}, ErrInvalidFilename
	}
	if clientID == "" {
		return Lease{}, ErrInvalidClientID
	}
	if err := ctx.Err(); err != nil {
		return Lease{}, err
	}
	if err := s.lock(ctx); err != nil {
		return Lease{}, err
	}
	defer s.unlock()

	return s.acquireLocked(filename, clientID)
}

func (s *InMemoryLockService) acquireLocked(filename, clientID string) (Lease, error) {
	now := s.now()
	current, held := s.leases[filename]
	if held && current.ClientID != clientID && now.Before(current.ExpiresAt) {
		s.ls.Debug(log_service.LogEvent{
			Message:  "Write lock denied",
			Metadata: map[string]any{"filename": filename, "clientID": clientID, "holder": current.ClientID},
		})
		if s.metrics != nil {
			s.metrics.RecordLease("denied")
		}
		return Lease{}, &LockHeldError{Lease: current}
	}

	lease := Lease{
		Filename:   filename,
		ClientID:   clientID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if held && current.ClientID == clientID && now.Before(current.ExpiresAt) {
		lease.AcquiredAt = current.AcquiredAt
	}
	if !held || current.ClientID != clientID {
		delete(s.holds, filename)
	}
	s.leases[filename] = lease

	s.ls.Debug(log_service.LogEvent{
		Message:  "Write lock granted",
		Metadata: map[string]any{"filename": filename, "clientID": clientID, "expiresAt": lease.ExpiresAt},
	})
	if s.metrics != nil {
		s.metrics.RecordLease("granted")
		s.metrics.SetActiveLeases(len(s.leases))
	}
	return lease, nil
}

// Release drops the lease unless a guarded call of the same client is still
// running, in which case the last of those calls drops it.
func (s *InMemoryLockService) Release(filename, clientID string) bool {
	s.sem <- struct{}{}
	defer s.unlock()

	current, held := s.leases[filename]
	if !held || current.ClientID != clientID {
		return false
	}
	if s.holds[filename] > 0 {
		s.ls.Debug(log_service.LogEvent{
			Message:  "Write lock release deferred",
			Metadata: map[string]any{"filename": filename, "clientID": clientID, "holds": s.holds[filename]},
		})
		return false
	}
	s.dropLocked(filename, clientID)
	return true
}

// Guard calls of one client nest. Each adds a hold on the lease and the
// lease is dropped when the last hold goes away.
func (s *InMemoryLockService) Guard(ctx context.Context, filename, clientID string) (func(), error) {
	if filename == "" {
		return func() {}, ErrInvalidFilename
	}
	if clientID == "" {
		return func() {}, ErrInvalidClientID
	}
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	if err := s.lock(ctx); err != nil {
		return func() {}, err
	}
	_, err := s.acquireLocked(filename, clientID)
	if err == nil {
		s.holds[filename]++
	}
	s.unlock()
	if err != nil {
		return func() {}, err
	}

	var once sync.Once
	return func() { once.Do(func() { s.unhold(filename, clientID) }) }, nil
}

func (s *InMemoryLockService) unhold(filename, clientID string) {
	s.sem <- struct{}{}
	defer s.unlock()

	current, held := s.leases[filename]
	if !held || current.ClientID != clientID {
		return
	}
	if n := s.holds[filename] - 1; n > 0 {
		s.holds[filename] = n
		return
	}
	s.dropLocked(filename, clientID)
}

func (s *InMemoryLockService) dropLocked(filename, clientID string) {
	delete(s.leases, filename)
	delete(s.holds, filename)

	s.ls.Debug(log_service.LogEvent{
		Message:  "Write lock released",
		Metadata: map[string]any{"filename": filename, "clientID": clientID},
	})
	if s.metrics != nil {
		s.metrics.RecordLease("released")
		s.metrics.SetActiveLeases(len(s.leases))
	}
}

func (s *InMemoryLockService) Holder(filename string) (Lease, bool) {
	s.sem <- struct{}{}
	defer s.unlock()

	lease, held := s.leases[filename]
	if !held || !s.now().Before(lease.ExpiresAt) {
		return Lease{}, false
	}
	return lease, true
}

// Len counts unexpired leases and drops the expired ones.
func (s *InMemoryLockService) Len() int {
	s.sem <- struct{}{}
	defer s.unlock()

	now := s.now()
	for name, lease := range s.leases {
		if !now.Before(lease.ExpiresAt) {
			delete(s.leases, name)
			delete(s.holds, name)
		}
	}
	return len(s.leases)
}

var _ LockService = (*InMemoryLockService)(nil)
