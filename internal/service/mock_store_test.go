package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/class-reservation/internal/model"
	"github.com/iliyamo/class-reservation/internal/queue"
	"github.com/iliyamo/class-reservation/internal/repository"
)

// ── Mock Store ──
//
// mockStore keeps every table in memory.  InTx holds a single mutex for
// the whole transaction, standing in for the session row lock, and
// restores a snapshot when fn fails.

type partKey struct {
	room   uint64
	role   model.Role
	member uint64
}

type memState struct {
	sessions     map[uint64]model.Session
	enrolled     map[[2]uint64]bool // learner, offering
	reservations map[uint64]model.Reservation
	audit        []model.AuditEntry
	rooms        map[uint64]model.ChatRoom // by session
	participants map[partKey]bool
	nextID       uint64
}

func (m memState) clone() memState {
	c := memState{
		sessions:     make(map[uint64]model.Session, len(m.sessions)),
		enrolled:     make(map[[2]uint64]bool, len(m.enrolled)),
		reservations: make(map[uint64]model.Reservation, len(m.reservations)),
		audit:        append([]model.AuditEntry(nil), m.audit...),
		rooms:        make(map[uint64]model.ChatRoom, len(m.rooms)),
		participants: make(map[partKey]bool, len(m.participants)),
		nextID:       m.nextID,
	}
	for k, v := range m.sessions {
		c.sessions[k] = v
	}
	for k, v := range m.enrolled {
		c.enrolled[k] = v
	}
	for k, v := range m.reservations {
		c.reservations[k] = v
	}
	for k, v := range m.rooms {
		c.rooms[k] = v
	}
	for k, v := range m.participants {
		c.participants[k] = v
	}
	return c
}

type mockStore struct {
	mu    sync.Mutex
	state memState

	transientFailures int   // InTx fails with a deadlock this many times
	participantErr    error // returned by EnsureParticipant/RemoveParticipant
	txCount           int
}

func newMockStore() *mockStore {
	return &mockStore{state: memState{
		sessions:     map[uint64]model.Session{},
		enrolled:     map[[2]uint64]bool{},
		reservations: map[uint64]model.Reservation{},
		rooms:        map[uint64]model.ChatRoom{},
		participants: map[partKey]bool{},
	}}
}

func (m *mockStore) addSession(s model.Session) {
	m.state.sessions[s.ID] = s
}

func (m *mockStore) enroll(learnerID, offeringID uint64) {
	m.state.enrolled[[2]uint64{learnerID, offeringID}] = true
}

func (m *mockStore) addRoom(sessionID uint64) model.ChatRoom {
	m.state.nextID++
	room := model.ChatRoom{ID: m.state.nextID, SessionID: sessionID, Title: "room"}
	m.state.rooms[sessionID] = room
	return room
}

func (m *mockStore) isMember(sessionID, learnerID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.state.rooms[sessionID]
	return ok && m.state.participants[partKey{room.ID, model.RoleLearner, learnerID}]
}

func (m *mockStore) memberCount(sessionID uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.state.rooms[sessionID]
	if !ok {
		return 0
	}
	n := 0
	for k := range m.state.participants {
		if k.room == room.ID {
			n++
		}
	}
	return n
}

func (m *mockStore) auditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.audit)
}

func (m *mockStore) reservationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.reservations)
}

func (m *mockStore) InTx(_ context.Context, fn func(repository.UnitOfWork) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++
	if m.transientFailures > 0 {
		m.transientFailures--
		return &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
	}
	snapshot := m.state.clone()
	if err := fn(&mockTx{m: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *mockStore) GetSession(_ context.Context, id uint64) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session(id)
}

func (m *mockStore) GetReservation(_ context.Context, id uint64) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservation(id)
}

func (m *mockStore) CountReservations(_ context.Context, sessionID uint64, statuses []model.Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count(sessionID, statuses), nil
}

func (m *mockStore) ListBySession(_ context.Context, sessionID uint64) ([]model.ReservationView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.views(func(r model.Reservation) bool { return r.SessionID == sessionID }), nil
}

func (m *mockStore) ListByLearner(_ context.Context, learnerID uint64) ([]model.ReservationView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.views(func(r model.Reservation) bool { return r.LearnerID == learnerID }), nil
}

func (m *mockStore) ListAudit(_ context.Context, reservationID uint64) ([]model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AuditEntry
	for i := len(m.state.audit) - 1; i >= 0; i-- {
		if m.state.audit[i].ReservationID == reservationID {
			out = append(out, m.state.audit[i])
		}
	}
	return out, nil
}

// unlocked helpers

func (m *mockStore) session(id uint64) (*model.Session, error) {
	s, ok := m.state.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (m *mockStore) reservation(id uint64) (*model.Reservation, error) {
	r, ok := m.state.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m *mockStore) count(sessionID uint64, statuses []model.Status) int {
	n := 0
	for _, r := range m.state.reservations {
		if r.SessionID != sessionID {
			continue
		}
		for _, st := range statuses {
			if r.Status == st {
				n++
			}
		}
	}
	return n
}

func (m *mockStore) views(keep func(model.Reservation) bool) []model.ReservationView {
	var out []model.ReservationView
	for _, r := range m.state.reservations {
		if !keep(r) {
			continue
		}
		s := m.state.sessions[r.SessionID]
		out = append(out, model.ReservationView{Reservation: r, SessionTitle: s.Title, SessionStart: s.StartTime})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// ── Mock UnitOfWork ──

type mockTx struct{ m *mockStore }

func (t *mockTx) LockSession(_ context.Context, id uint64) (*model.Session, error) {
	return t.m.session(id)
}

func (t *mockTx) IsEnrolled(_ context.Context, learnerID, offeringID uint64) (bool, error) {
	return t.m.state.enrolled[[2]uint64{learnerID, offeringID}], nil
}

func (t *mockTx) CountReservations(_ context.Context, sessionID uint64, statuses []model.Status) (int, error) {
	return t.m.count(sessionID, statuses), nil
}

func (t *mockTx) LearnersWithStatus(_ context.Context, sessionID uint64, statuses []model.Status) ([]uint64, error) {
	var out []uint64
	for _, r := range t.m.state.reservations {
		if r.SessionID != sessionID {
			continue
		}
		for _, st := range statuses {
			if r.Status == st {
				out = append(out, r.LearnerID)
			}
		}
	}
	return out, nil
}

func (t *mockTx) GetReservation(_ context.Context, id uint64) (*model.Reservation, error) {
	return t.m.reservation(id)
}

func (t *mockTx) LockReservation(_ context.Context, id uint64) (*model.Reservation, error) {
	return t.m.reservation(id)
}

func (t *mockTx) FindReservation(_ context.Context, sessionID, learnerID uint64) (*model.Reservation, error) {
	for _, r := range t.m.state.reservations {
		if r.SessionID == sessionID && r.LearnerID == learnerID {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *mockTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	if _, err := t.FindReservation(ctx, r.SessionID, r.LearnerID); err == nil {
		return repository.ErrConflict
	}
	t.m.state.nextID++
	now := time.Now().UTC()
	r.ID, r.CreatedAt, r.UpdatedAt = t.m.state.nextID, now, now
	t.m.state.reservations[r.ID] = *r
	return nil
}

func (t *mockTx) UpdateReservationStatus(_ context.Context, r *model.Reservation, status model.Status) error {
	stored, ok := t.m.state.reservations[r.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Status = status
	stored.UpdatedAt = time.Now().UTC()
	t.m.state.reservations[r.ID] = stored
	r.Status, r.UpdatedAt = stored.Status, stored.UpdatedAt
	return nil
}

func (t *mockTx) AppendAudit(_ context.Context, e *model.AuditEntry) error {
	t.m.state.nextID++
	e.ID, e.CreatedAt = t.m.state.nextID, time.Now().UTC()
	t.m.state.audit = append(t.m.state.audit, *e)
	return nil
}

func (t *mockTx) ChatRoomForSession(_ context.Context, sessionID uint64) (*model.ChatRoom, error) {
	room, ok := t.m.state.rooms[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &room, nil
}

func (t *mockTx) CreateChatRoom(_ context.Context, room *model.ChatRoom) error {
	if _, ok := t.m.state.rooms[room.SessionID]; ok {
		return repository.ErrConflict
	}
	t.m.state.nextID++
	room.ID, room.CreatedAt = t.m.state.nextID, time.Now().UTC()
	t.m.state.rooms[room.SessionID] = *room
	return nil
}

func (t *mockTx) EnsureParticipant(_ context.Context, roomID uint64, role model.Role, memberID uint64) error {
	if t.m.participantErr != nil {
		return t.m.participantErr
	}
	t.m.state.participants[partKey{roomID, role, memberID}] = true
	return nil
}

func (t *mockTx) RemoveParticipant(_ context.Context, roomID uint64, role model.Role, memberID uint64) error {
	if t.m.participantErr != nil {
		return t.m.participantErr
	}
	delete(t.m.state.participants, partKey{roomID, role, memberID})
	return nil
}

func (t *mockTx) IsParticipant(_ context.Context, roomID uint64, role model.Role, memberID uint64) (bool, error) {
	return t.m.state.participants[partKey{roomID, role, memberID}], nil
}

// ── Mock EventPublisher ──

type mockPublisher struct {
	mu     sync.Mutex
	events []queue.ReservationChangedEvent
	err    error
}

func (p *mockPublisher) PublishReservationChanged(_ context.Context, ev queue.ReservationChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *mockPublisher) all() []queue.ReservationChangedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.ReservationChangedEvent(nil), p.events...)
}

type mockSummaries struct {
	mu          sync.Mutex
	invalidated []uint64
	err         error
}

func (m *mockSummaries) InvalidateSession(_ context.Context, sessionID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, sessionID)
	return m.err
}

func (m *mockSummaries) all() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.invalidated...)
}

var errChatDown = errors.New("chat store unavailable")
