// Package memory provides in-memory implementations of the delivery
// persistence ports, used in tests and single-process development setups.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/mailcourier/internal/domain/notification"
)

var _ notification.DeliveryRecordStore = (*RecordStore)(nil)

// RecordStore implements notification.DeliveryRecordStore with a
// mutex-protected map. Saved records are copied on the way in and out so
// callers cannot mutate stored state.
type RecordStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]notification.DeliveryRecord
}

// NewRecordStore creates an empty in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[uuid.UUID]notification.DeliveryRecord)}
}

// Save upserts the record keyed by notice ID.
func (s *RecordStore) Save(_ context.Context, rec *notification.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.NoticeID] = *rec
	return nil
}

// Get returns a copy of the record for the notice ID.
func (s *RecordStore) Get(_ context.Context, noticeID uuid.UUID) (*notification.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[noticeID]
	if !ok {
		return nil, notification.ErrRecordNotFound
	}
	out := rec
	return &out, nil
}

var _ notification.DeadLetterSink = (*DeadLetterSink)(nil)

// DeadLetterSink implements notification.DeadLetterSink by accumulating dead
// letters in memory.
type DeadLetterSink struct {
	mu      sync.Mutex
	letters []notification.DeadLetter
}

// NewDeadLetterSink creates an empty in-memory sink.
func NewDeadLetterSink() *DeadLetterSink {
	return &DeadLetterSink{}
}

// Sink appends the dead letter.
func (s *DeadLetterSink) Sink(_ context.Context, dl notification.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, dl)
	return nil
}

// Letters returns a copy of everything sunk so far.
func (s *DeadLetterSink) Letters() []notification.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notification.DeadLetter, len(s.letters))
	copy(out, s.letters)
	return out
}
