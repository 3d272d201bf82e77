// Package memory is a process-local implementation of the repositories,
// used by tests and by local runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository"
	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
)

type Store struct {
	mu           sync.RWMutex
	businesses   map[uuid.UUID]*model.Business
	staff        map[uuid.UUID]*model.Staff
	patients     map[uuid.UUID]*model.Patient
	appointments map[uuid.UUID]*model.Appointment
	events       []*model.OutboxEvent

	dayLocks *keyedMutex
	rowLocks *keyedMutex
	outboxMu sync.Mutex
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		businesses:   make(map[uuid.UUID]*model.Business),
		staff:        make(map[uuid.UUID]*model.Staff),
		patients:     make(map[uuid.UUID]*model.Patient),
		appointments: make(map[uuid.UUID]*model.Appointment),
		dayLocks:     newKeyedMutex(),
		rowLocks:     newKeyedMutex(),
		now:          time.Now,
	}
}

// SetClock overrides the time source used for outbox scheduling.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) AddBusiness(b *model.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.businesses[b.ID] = &cp
}

func (s *Store) AddStaff(st *model.Staff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.staff[st.ID] = &cp
}

func (s *Store) AddPatient(p *model.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.patients[p.ID] = &cp
}

// Events returns a snapshot of every outbox event written so far.
func (s *Store) Events() []*model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.OutboxEvent, 0, len(s.events))
	for _, e := range s.events {
		cp := *e
		out = append(out, &cp)
	}
	return out
}

func (s *Store) Businesses() repository.BusinessRepository     { return businessRepo{s} }
func (s *Store) Staff() repository.StaffRepository              { return staffRepo{s} }
func (s *Store) Patients() repository.PatientRepository         { return patientRepo{s} }
func (s *Store) Appointments() repository.AppointmentRepository { return appointmentRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository            { return outboxRepo{s} }

type businessRepo struct{ s *Store }

func (r businessRepo) Get(_ context.Context, id uuid.UUID) (*model.Business, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.businesses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

type staffRepo struct{ s *Store }

func (r staffRepo) Get(_ context.Context, businessID, id uuid.UUID) (*model.Staff, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.staff[id]
	if !ok || st.BusinessID != businessID {
		return nil, repository.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

type patientRepo struct{ s *Store }

func (r patientRepo) Get(_ context.Context, businessID, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.patients[id]
	if !ok || p.BusinessID != businessID {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type appointmentRepo struct{ s *Store }

func (r appointmentRepo) Get(_ context.Context, businessID, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.appointments[id]
	if !ok || a.BusinessID != businessID {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r appointmentRepo) List(_ context.Context, q model.AppointmentQuery) ([]*model.Appointment, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*model.Appointment
	for _, a := range r.s.appointments {
		if matches(a, q) {
			cp := *a
			matched = append(matched, &cp)
		}
	}
	sortAppointments(matched)

	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	if matched == nil {
		matched = []*model.Appointment{}
	}
	return matched, total, nil
}

func (r appointmentRepo) ListForStaffDay(_ context.Context, key repository.StaffDayKey, statuses []scheduling.Status) ([]*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.staffDay(key, statuses, nil), nil
}

func (r appointmentRepo) Atomically(ctx context.Context, lock *repository.StaffDayKey, fn func(tx repository.AppointmentTx) error) error {
	if lock != nil {
		unlock := r.s.dayLocks.Lock(lock.String())
		defer unlock()
	}

	tx := &memTx{
		s:      r.s,
		staged: make(map[uuid.UUID]*model.Appointment),
		locked: make(map[uuid.UUID]bool),
	}
	defer tx.releaseRows()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) staffDay(key repository.StaffDayKey, statuses []scheduling.Status, overlay map[uuid.UUID]*model.Appointment) []*model.Appointment {
	if len(statuses) == 0 {
		statuses = scheduling.ActiveStatuses
	}
	seen := make(map[uuid.UUID]bool)
	var out []*model.Appointment
	consider := func(a *model.Appointment) {
		if a.BusinessID != key.BusinessID || a.StaffID != key.StaffID || a.Date != key.Date {
			return
		}
		if !hasStatus(statuses, a.Status) {
			return
		}
		cp := *a
		out = append(out, &cp)
	}
	for id, a := range overlay {
		seen[id] = true
		if a != nil {
			consider(a)
		}
	}
	for id, a := range s.appointments {
		if !seen[id] {
			consider(a)
		}
	}
	sortAppointments(out)
	return out
}

type memTx struct {
	s      *Store
	staged map[uuid.UUID]*model.Appointment // nil value marks a delete
	events []*model.OutboxEvent
	// locked holds the rows this tx owns; row locks are not reentrant.
	locked map[uuid.UUID]bool
	rows   []func()
}

func (tx *memTx) ListForStaffDay(_ context.Context, key repository.StaffDayKey, statuses []scheduling.Status) ([]*model.Appointment, error) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.staffDay(key, statuses, tx.staged), nil
}

func (tx *memTx) GetForUpdate(ctx context.Context, businessID, id uuid.UUID) (*model.Appointment, error) {
	if staged, ok := tx.staged[id]; ok {
		if staged == nil || staged.BusinessID != businessID {
			return nil, repository.ErrNotFound
		}
		cp := *staged
		return &cp, nil
	}
	if !tx.locked[id] {
		tx.rows = append(tx.rows, tx.s.rowLocks.Lock(id.String()))
		tx.locked[id] = true
	}
	return appointmentRepo{tx.s}.Get(ctx, businessID, id)
}

func (tx *memTx) Create(_ context.Context, apt *model.Appointment) error {
	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	now := tx.s.now()
	apt.CreatedAt = now
	apt.UpdatedAt = now
	cp := *apt
	tx.staged[apt.ID] = &cp
	return nil
}

func (tx *memTx) Update(_ context.Context, apt *model.Appointment) error {
	tx.s.mu.RLock()
	_, exists := tx.s.appointments[apt.ID]
	tx.s.mu.RUnlock()
	if staged, ok := tx.staged[apt.ID]; ok {
		exists = staged != nil
	}
	if !exists {
		return repository.ErrNotFound
	}
	apt.UpdatedAt = tx.s.now()
	cp := *apt
	tx.staged[apt.ID] = &cp
	return nil
}

func (tx *memTx) Delete(ctx context.Context, businessID, id uuid.UUID) error {
	if _, err := tx.GetForUpdate(ctx, businessID, id); err != nil {
		return err
	}
	tx.staged[id] = nil
	return nil
}

func (tx *memTx) AddEvent(_ context.Context, evt *model.OutboxEvent) error {
	cp := *evt
	tx.events = append(tx.events, &cp)
	return nil
}

// commit applies staged writes, refusing any that would leave two active
// bookings overlapping on one staff calendar.
func (tx *memTx) commit() error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	for id, a := range tx.staged {
		if a == nil || !a.Status.IsActive() {
			continue
		}
		key := repository.StaffDayKey{BusinessID: a.BusinessID, StaffID: a.StaffID, Date: a.Date}
		for _, other := range tx.s.staffDay(key, nil, tx.staged) {
			if other.ID != id && scheduling.Overlaps(other.Interval(), a.Interval()) {
				return repository.ErrOverlap
			}
		}
	}

	for id, a := range tx.staged {
		if a == nil {
			delete(tx.s.appointments, id)
			continue
		}
		tx.s.appointments[id] = a
	}
	tx.s.events = append(tx.s.events, tx.events...)
	return nil
}

func (tx *memTx) releaseRows() {
	for i := len(tx.rows) - 1; i >= 0; i-- {
		tx.rows[i]()
	}
}

func matches(a *model.Appointment, q model.AppointmentQuery) bool {
	if a.BusinessID != q.BusinessID {
		return false
	}
	if q.Status != nil && a.Status != *q.Status {
		return false
	}
	if q.StaffID != nil && a.StaffID != *q.StaffID {
		return false
	}
	if q.PatientID != nil && a.PatientID != *q.PatientID {
		return false
	}
	if q.Type != nil && a.Type != *q.Type {
		return false
	}
	if q.DateFrom != nil && a.Date.Before(*q.DateFrom) {
		return false
	}
	if q.DateTo != nil && a.Date.After(*q.DateTo) {
		return false
	}
	if q.ActiveOnly && !a.Status.IsActive() {
		return false
	}
	if q.VisibleTo != nil && a.CreatedBy != *q.VisibleTo && a.StaffID != *q.VisibleTo {
		return false
	}
	return true
}

func sortAppointments(list []*model.Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if c := list[i].Date.Compare(list[j].Date); c != 0 {
			return c < 0
		}
		if list[i].StartTime != list[j].StartTime {
			return list[i].StartTime < list[j].StartTime
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}

func hasStatus(set []scheduling.Status, s scheduling.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
