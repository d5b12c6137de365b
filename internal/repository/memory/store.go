// Package memory implements the repository interfaces on in-process maps.
// It backs the service and handler tests and mirrors the conditional-update
// semantics of the postgres package.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
)

type Store struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]model.User
	patients  map[uuid.UUID]model.Patient
	transfers map[uuid.UUID]model.Transfer
	records   map[uuid.UUID]model.HealthRecord
	reports   map[uuid.UUID]model.MedicalReport
	messages  []model.Message
	outbox    map[uuid.UUID]model.OutboxEvent
	outboxSeq []uuid.UUID
	audits    []model.AuditLog
}

func NewStore() *Store {
	return &Store{
		users:     make(map[uuid.UUID]model.User),
		patients:  make(map[uuid.UUID]model.Patient),
		transfers: make(map[uuid.UUID]model.Transfer),
		records:   make(map[uuid.UUID]model.HealthRecord),
		reports:   make(map[uuid.UUID]model.MedicalReport),
		outbox:    make(map[uuid.UUID]model.OutboxEvent),
	}
}

// AddUser seeds the identity directory.
func (s *Store) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = u
}

// AddPatient seeds a patient row.
func (s *Store) AddPatient(p model.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
}

// OutboxEvents returns a snapshot of all outbox events in creation order.
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.OutboxEvent, 0, len(s.outbox))
	for _, id := range s.outboxSeq {
		if e, ok := s.outbox[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// AuditLogs returns a snapshot of the audit trail.
func (s *Store) AuditLogs() []model.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AuditLog(nil), s.audits...)
}

func (s *Store) Users() repository.UserRepository                   { return userRepo{s} }
func (s *Store) Patients() repository.PatientRepository             { return patientRepo{s} }
func (s *Store) Transfers() repository.TransferRepository           { return transferRepo{s} }
func (s *Store) HealthRecords() repository.HealthRecordRepository   { return recordRepo{s} }
func (s *Store) MedicalReports() repository.MedicalReportRepository { return reportRepo{s} }
func (s *Store) Messages() repository.MessageRepository             { return messageRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository                { return outboxRepo{s} }
func (s *Store) Audit() repository.AuditRepository                  { return auditRepo{s} }

type userRepo struct{ s *Store }

func (r userRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) ListHospitals(_ context.Context) ([]*model.Hospital, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Hospital
	for _, u := range r.s.users {
		if u.Role == model.RoleHospital {
			out = append(out, &model.Hospital{ID: u.ID, FullName: u.FullName, Email: u.Email})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

type patientRepo struct{ s *Store }

func (r patientRepo) EnsureForUser(_ context.Context, userID uuid.UUID) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.patients {
		if p.UserID == userID {
			p := p
			return &p, nil
		}
	}
	now := time.Now()
	p := model.Patient{ID: uuid.New(), UserID: userID, Timestamps: model.Timestamps{CreatedAt: now, UpdatedAt: now}}
	r.s.patients[p.ID] = p
	return &p, nil
}

func (r patientRepo) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r patientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*model.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.patients {
		if p.UserID == userID {
			p := p
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r patientRepo) SetCurrentHospital(_ context.Context, patientID, hospitalID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[patientID]
	if !ok {
		return repository.ErrNotFound
	}
	h := hospitalID
	p.CurrentHospitalID = &h
	p.UpdatedAt = time.Now()
	r.s.patients[patientID] = p
	return nil
}

func (r patientRepo) MoveAdmission(_ context.Context, patientID uuid.UUID, observed *uuid.UUID, hospitalID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[patientID]
	if !ok {
		return repository.ErrConditionFailed
	}
	switch {
	case observed == nil && p.CurrentHospitalID != nil,
		observed != nil && (p.CurrentHospitalID == nil || *p.CurrentHospitalID != *observed):
		return repository.ErrConditionFailed
	}
	h := hospitalID
	p.CurrentHospitalID = &h
	p.UpdatedAt = time.Now()
	r.s.patients[patientID] = p
	return nil
}

func (r patientRepo) Admit(_ context.Context, patientID, hospitalID uuid.UUID) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[patientID]
	if !ok || (p.CurrentHospitalID != nil && *p.CurrentHospitalID != hospitalID) {
		return nil, repository.ErrConditionFailed
	}
	h := hospitalID
	p.CurrentHospitalID = &h
	p.UpdatedAt = time.Now()
	r.s.patients[patientID] = p
	return &p, nil
}

func (r patientRepo) ListByHospital(_ context.Context, hospitalID uuid.UUID) ([]*model.PatientProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.PatientProfile
	for _, p := range r.s.patients {
		if !p.IsAdmittedAt(hospitalID) {
			continue
		}
		u := r.s.users[p.UserID]
		out = append(out, &model.PatientProfile{Patient: p, FullName: u.FullName, Email: u.Email})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

type transferRepo struct{ s *Store }

func (r transferRepo) Create(_ context.Context, t *model.Transfer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.FromHospitalID != nil && t.Status.IsActive() {
		for _, existing := range r.s.transfers {
			if existing.PatientID == t.PatientID && existing.IsFrom(*t.FromHospitalID) && existing.Status.IsActive() {
				return repository.ErrDuplicate
			}
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	r.s.transfers[t.ID] = *t
	return nil
}

func (r transferRepo) Get(_ context.Context, id uuid.UUID) (*model.Transfer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.transfers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r transferRepo) HasActiveFrom(_ context.Context, patientID, fromHospitalID uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.transfers {
		if t.PatientID == patientID && t.IsFrom(fromHospitalID) && t.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (r transferRepo) Transition(_ context.Context, id uuid.UUID, expected, next model.TransferStatus, at time.Time) (*model.Transfer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transfers[id]
	if !ok || t.Status != expected {
		return nil, repository.ErrConditionFailed
	}
	t.Status = next
	switch next {
	case model.TransferStatusAccepted:
		t.AcceptedAt = &at
	case model.TransferStatusCompleted:
		t.CompletedAt = &at
	}
	r.s.transfers[id] = t
	return &t, nil
}

func (r transferRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.Transfer, error) {
	return r.filter(func(t model.Transfer) bool { return t.PatientID == patientID }, true), nil
}

func (r transferRepo) ListByHospital(_ context.Context, hospitalID uuid.UUID, statuses ...model.TransferStatus) ([]*model.Transfer, error) {
	return r.filter(func(t model.Transfer) bool {
		if !t.Involves(hospitalID) {
			return false
		}
		if len(statuses) == 0 {
			return true
		}
		for _, s := range statuses {
			if t.Status == s {
				return true
			}
		}
		return false
	}, false), nil
}

func (r transferRepo) LatestAdmitting(_ context.Context, patientID uuid.UUID) (*model.Transfer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var latest *model.Transfer
	for _, t := range r.s.transfers {
		if t.PatientID != patientID || t.AcceptedAt == nil {
			continue
		}
		if latest == nil || t.AcceptedAt.After(*latest.AcceptedAt) {
			t := t
			latest = &t
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (r transferRepo) filter(keep func(model.Transfer) bool, ascending bool) []*model.Transfer {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Transfer
	for _, t := range r.s.transfers {
		if keep(t) {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out
}

type recordRepo struct{ s *Store }

func (r recordRepo) Create(_ context.Context, rec *model.HealthRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now()
	r.s.records[rec.ID] = *rec
	return nil
}

func (r recordRepo) Get(_ context.Context, id uuid.UUID) (*model.HealthRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (r recordRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.HealthRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.HealthRecord
	for _, rec := range r.s.records {
		if rec.PatientID == patientID {
			rec := rec
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out, nil
}

func (r recordRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.records, id)
	return nil
}

type reportRepo struct{ s *Store }

func (r reportRepo) Create(_ context.Context, rep *model.MedicalReport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	r.s.reports[rep.ID] = *rep
	return nil
}

func (r reportRepo) Get(_ context.Context, id uuid.UUID) (*model.MedicalReport, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rep, ok := r.s.reports[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rep, nil
}

func (r reportRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.MedicalReport, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.MedicalReport
	for _, rep := range r.s.reports {
		if rep.PatientID == patientID {
			rep := rep
			out = append(out, &rep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (r reportRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reports[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.reports, id)
	return nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(_ context.Context, msg *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	r.s.messages = append(r.s.messages, *msg)
	return nil
}

func (r messageRepo) ListByTransfer(_ context.Context, transferID uuid.UUID) ([]*model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Message
	for _, m := range r.s.messages {
		if m.TransferID == transferID {
			m := m
			out = append(out, &m)
		}
	}
	return out, nil
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	event.Status = string(model.OutboxStatusPending)
	r.s.outbox[event.ID] = *event
	r.s.outboxSeq = append(r.s.outboxSeq, event.ID)
	return nil
}

func (r outboxRepo) GetPendingEventsWithLock(_ context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	var due []model.OutboxEvent
	for _, id := range r.s.outboxSeq {
		e, ok := r.s.outbox[id]
		if !ok {
			continue
		}
		pending := e.Status == string(model.OutboxStatusPending) || e.Status == string(model.OutboxStatusRetry)
		if pending && (e.RetryAt == nil || !e.RetryAt.After(now)) {
			due = append(due, e)
		}
	}
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*model.OutboxEvent, 0, len(due))
	for _, e := range due {
		until := now.Add(lease)
		e.RetryAt = &until
		r.s.outbox[e.ID] = e
		e := e
		out = append(out, &e)
	}
	return out, nil
}

func (r outboxRepo) update(id uuid.UUID, fn func(*model.OutboxEvent)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&e)
	e.UpdatedAt = time.Now()
	r.s.outbox[id] = e
	return nil
}

func (r outboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(e *model.OutboxEvent) {
		now := time.Now()
		e.Status = string(model.OutboxStatusProcessed)
		e.ProcessedAt = &now
		e.ErrorMessage = nil
	})
}

func (r outboxRepo) MarkRetry(_ context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	return r.update(id, func(e *model.OutboxEvent) {
		e.Status = string(model.OutboxStatusRetry)
		e.ErrorMessage = &errMsg
		e.RetryAt = &retryAt
		e.RetryCount++
	})
}

func (r outboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	return r.update(id, func(e *model.OutboxEvent) {
		e.Status = string(model.OutboxStatusFailed)
		e.ErrorMessage = &errMsg
	})
}

func (r outboxRepo) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, e := range r.s.outbox {
		if e.Status == string(model.OutboxStatusProcessed) && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.s.outbox, id)
			n++
		}
	}
	return n, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Create(_ context.Context, log *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audits = append(r.s.audits, *log)
	return nil
}
