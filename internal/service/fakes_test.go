package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
)

// fakeDB is an in-memory stand-in for PostgreSQL shared by the store fakes. Guarded
// updates mirror the repository's conditional UPDATE statements.
type fakeDB struct {
	mu   sync.Mutex
	txMu sync.Mutex

	years      map[string]models.AcademicYear
	terms      map[string]models.Term
	vouchers   map[string]models.EVoucher
	students   map[string]models.Student
	guardians  []models.Guardian
	medical    []models.MedicalRecord
	admissions map[string]models.Admission
	classes    map[string]models.Class
	streams    map[string]models.Stream
	seq        int64

	failCreateAdmission error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		years:      map[string]models.AcademicYear{},
		terms:      map[string]models.Term{},
		vouchers:   map[string]models.EVoucher{},
		students:   map[string]models.Student{},
		admissions: map[string]models.Admission{},
		classes:    map[string]models.Class{},
		streams:    map[string]models.Stream{},
	}
}

type fakeSnapshot struct {
	years      map[string]models.AcademicYear
	terms      map[string]models.Term
	vouchers   map[string]models.EVoucher
	students   map[string]models.Student
	guardians  []models.Guardian
	medical    []models.MedicalRecord
	admissions map[string]models.Admission
	seq        int64
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (db *fakeDB) snapshot() fakeSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fakeSnapshot{
		years:      copyMap(db.years),
		terms:      copyMap(db.terms),
		vouchers:   copyMap(db.vouchers),
		students:   copyMap(db.students),
		guardians:  append([]models.Guardian(nil), db.guardians...),
		medical:    append([]models.MedicalRecord(nil), db.medical...),
		admissions: copyMap(db.admissions),
		seq:        db.seq,
	}
}

func (db *fakeDB) restore(s fakeSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.years, db.terms, db.vouchers, db.students = s.years, s.terms, s.vouchers, s.students
	db.guardians, db.medical, db.admissions = s.guardians, s.medical, s.admissions
	// sequences are not transactional
}

func (db *fakeDB) inTx(nested bool, fn func() error) error {
	if nested {
		return fn()
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()
	snap := db.snapshot()
	if err := fn(); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

func (db *fakeDB) voucherByNumber(number string) (models.EVoucher, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, v := range db.vouchers {
		if v.VoucherNumber == number {
			return v, true
		}
	}
	return models.EVoucher{}, false
}

func (db *fakeDB) countVouchers(status models.VoucherStatus) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	count := 0
	for _, v := range db.vouchers {
		if v.Status == status {
			count++
		}
	}
	return count
}

// calendar store

type fakeCalendarStore struct {
	db     *fakeDB
	nested bool
}

var _ repository.CalendarStore = (*fakeCalendarStore)(nil)

func (f *fakeCalendarStore) WithinTx(ctx context.Context, fn func(repository.CalendarStore) error) error {
	return f.db.inTx(f.nested, func() error { return fn(&fakeCalendarStore{db: f.db, nested: true}) })
}

func (f *fakeCalendarStore) ListYears(ctx context.Context) ([]models.AcademicYear, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	years := make([]models.AcademicYear, 0, len(f.db.years))
	for _, y := range f.db.years {
		years = append(years, y)
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Name > years[j].Name })
	return years, nil
}

func (f *fakeCalendarStore) FindYearByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	y, ok := f.db.years[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &y, nil
}

func (f *fakeCalendarStore) LockYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	return f.FindYearByID(ctx, id)
}

func (f *fakeCalendarStore) FindActiveYears(ctx context.Context, excludeID string) ([]models.AcademicYear, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.AcademicYear
	for _, y := range f.db.years {
		if y.Status == models.AcademicYearActive && y.ID != excludeID {
			out = append(out, y)
		}
	}
	return out, nil
}

func (f *fakeCalendarStore) YearNameExists(ctx context.Context, name, excludeID string) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, y := range f.db.years {
		if strings.EqualFold(y.Name, name) && y.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCalendarStore) CreateYear(ctx context.Context, year *models.AcademicYear) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	if year.Status == models.AcademicYearActive {
		for _, y := range f.db.years {
			if y.Status == models.AcademicYearActive {
				return &pq.Error{Code: "23505", Constraint: repository.ConstraintSingleActiveYear}
			}
		}
	}
	f.db.years[year.ID] = *year
	return nil
}

func (f *fakeCalendarStore) UpdateYear(ctx context.Context, year *models.AcademicYear) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.years[year.ID]; !ok {
		return sql.ErrNoRows
	}
	f.db.years[year.ID] = *year
	return nil
}

func (f *fakeCalendarStore) DeleteYear(ctx context.Context, id string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.years[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.db.years, id)
	return nil
}

func (f *fakeCalendarStore) CountYearReferences(ctx context.Context, id string) (models.YearReferences, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var refs models.YearReferences
	for _, t := range f.db.terms {
		if t.AcademicYearID == id {
			refs.Terms++
		}
	}
	for _, v := range f.db.vouchers {
		if v.AcademicYearID == id {
			refs.Vouchers++
		}
	}
	for _, a := range f.db.admissions {
		if a.AcademicYearID == id {
			refs.Admissions++
		}
	}
	return refs, nil
}

func (f *fakeCalendarStore) ListTerms(ctx context.Context, yearID string) ([]models.Term, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Term
	for _, t := range f.db.terms {
		if t.AcademicYearID == yearID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (f *fakeCalendarStore) FindTermByID(ctx context.Context, id string) (*models.Term, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.terms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (f *fakeCalendarStore) FindActiveTerms(ctx context.Context, excludeID string) ([]models.Term, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Term
	for _, t := range f.db.terms {
		if t.Status == models.TermActive && t.ID != excludeID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeCalendarStore) CreateTerm(ctx context.Context, term *models.Term) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if term.ID == "" {
		term.ID = uuid.NewString()
	}
	f.db.terms[term.ID] = *term
	return nil
}

func (f *fakeCalendarStore) UpdateTerm(ctx context.Context, term *models.Term) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.terms[term.ID]; !ok {
		return sql.ErrNoRows
	}
	f.db.terms[term.ID] = *term
	return nil
}

func (f *fakeCalendarStore) DeleteTerm(ctx context.Context, id string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.terms[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.db.terms, id)
	return nil
}

func (f *fakeCalendarStore) CountTermAdmissions(ctx context.Context, id string) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	count := 0
	for _, a := range f.db.admissions {
		if a.TermID == id {
			count++
		}
	}
	return count, nil
}

// voucher store

type fakeVoucherStore struct {
	db     *fakeDB
	nested bool
}

var _ repository.VoucherStore = (*fakeVoucherStore)(nil)

func (f *fakeVoucherStore) WithinTx(ctx context.Context, fn func(repository.VoucherStore) error) error {
	return f.db.inTx(f.nested, func() error { return fn(&fakeVoucherStore{db: f.db, nested: true}) })
}

func (f *fakeVoucherStore) InsertIfAbsent(ctx context.Context, voucher *models.EVoucher) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, v := range f.db.vouchers {
		if v.VoucherNumber == voucher.VoucherNumber {
			return false, nil
		}
	}
	if voucher.ID == "" {
		voucher.ID = uuid.NewString()
	}
	f.db.vouchers[voucher.ID] = *voucher
	return true, nil
}

func (f *fakeVoucherStore) FindByID(ctx context.Context, id string) (*models.EVoucher, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	v, ok := f.db.vouchers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &v, nil
}

func (f *fakeVoucherStore) FindByNumber(ctx context.Context, number string) (*models.EVoucher, error) {
	v, ok := f.db.voucherByNumber(number)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &v, nil
}

func (f *fakeVoucherStore) List(ctx context.Context, filter models.VoucherFilter, now time.Time) ([]models.EVoucher, int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.EVoucher
	for _, v := range f.db.vouchers {
		if filter.AcademicYearID != "" && v.AcademicYearID != filter.AcademicYearID {
			continue
		}
		if filter.Status != "" && v.EffectiveStatus(now) != filter.Status {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoucherNumber < out[j].VoucherNumber })
	return out, len(out), nil
}

func (f *fakeVoucherStore) Reserve(ctx context.Context, id, reservationID string, now, staleBefore time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	v, ok := f.db.vouchers[id]
	if !ok || !v.ExpiresAt.After(now) {
		return sql.ErrNoRows
	}
	stale := v.Status == models.VoucherReserved && v.ReservedAt != nil && v.ReservedAt.Before(staleBefore)
	if v.Status != models.VoucherUnused && !stale {
		return sql.ErrNoRows
	}
	v.Status = models.VoucherReserved
	v.ReservedAt = &now
	v.ReservationID = &reservationID
	f.db.vouchers[id] = v
	return nil
}

func (f *fakeVoucherStore) Consume(ctx context.Context, id, reservationID string, now, staleBefore time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	v, ok := f.db.vouchers[id]
	if !ok || v.Status != models.VoucherReserved || v.ReservationID == nil || *v.ReservationID != reservationID ||
		v.ReservedAt == nil || v.ReservedAt.Before(staleBefore) || !v.ExpiresAt.After(now) {
		return sql.ErrNoRows
	}
	v.Status = models.VoucherUsed
	v.UsedAt = &now
	f.db.vouchers[id] = v
	return nil
}

func (f *fakeVoucherStore) Release(ctx context.Context, id string, now time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	v, ok := f.db.vouchers[id]
	if !ok || v.Status != models.VoucherReserved {
		return sql.ErrNoRows
	}
	v.Status, v.ReservedAt, v.ReservationID = models.VoucherUnused, nil, nil
	f.db.vouchers[id] = v
	return nil
}

func (f *fakeVoucherStore) Revoke(ctx context.Context, id string, now time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	v, ok := f.db.vouchers[id]
	if !ok {
		return sql.ErrNoRows
	}
	switch v.Status {
	case models.VoucherUnused, models.VoucherReserved, models.VoucherExpired:
	default:
		return sql.ErrNoRows
	}
	v.Status, v.RevokedAt, v.ReservedAt, v.ReservationID = models.VoucherRevoked, &now, nil, nil
	f.db.vouchers[id] = v
	return nil
}

func (f *fakeVoucherStore) ReleaseStale(ctx context.Context, staleBefore, now time.Time) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var count int64
	for id, v := range f.db.vouchers {
		if v.Status == models.VoucherReserved && v.ReservedAt != nil && v.ReservedAt.Before(staleBefore) && v.ExpiresAt.After(now) {
			v.Status, v.ReservedAt, v.ReservationID = models.VoucherUnused, nil, nil
			f.db.vouchers[id] = v
			count++
		}
	}
	return count, nil
}

func (f *fakeVoucherStore) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var count int64
	for id, v := range f.db.vouchers {
		if (v.Status == models.VoucherUnused || v.Status == models.VoucherReserved) && !v.ExpiresAt.After(now) {
			v.Status, v.ReservedAt, v.ReservationID = models.VoucherExpired, nil, nil
			f.db.vouchers[id] = v
			count++
		}
	}
	return count, nil
}

// admission store

type fakeAdmissionStore struct {
	db     *fakeDB
	nested bool
}

var _ repository.AdmissionStore = (*fakeAdmissionStore)(nil)

func (f *fakeAdmissionStore) WithinTx(ctx context.Context, fn func(repository.AdmissionStore) error) error {
	return f.db.inTx(f.nested, func() error { return fn(&fakeAdmissionStore{db: f.db, nested: true}) })
}

func (f *fakeAdmissionStore) Vouchers() repository.VoucherStore {
	return &fakeVoucherStore{db: f.db, nested: f.nested}
}

func (f *fakeAdmissionStore) CreateStudent(ctx context.Context, student *models.Student) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	f.db.students[student.ID] = *student
	return nil
}

func (f *fakeAdmissionStore) CreateGuardians(ctx context.Context, guardians []models.Guardian) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.guardians = append(f.db.guardians, guardians...)
	return nil
}

func (f *fakeAdmissionStore) CreateMedicalRecord(ctx context.Context, record *models.MedicalRecord) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.medical = append(f.db.medical, *record)
	return nil
}

func (f *fakeAdmissionStore) CreateAdmission(ctx context.Context, admission *models.Admission) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.failCreateAdmission != nil {
		return f.db.failCreateAdmission
	}
	for _, a := range f.db.admissions {
		if a.VoucherID == admission.VoucherID {
			return &pq.Error{Code: "23505", Constraint: repository.ConstraintAdmissionVoucher}
		}
	}
	if admission.ID == "" {
		admission.ID = uuid.NewString()
	}
	if admission.CreatedAt.IsZero() {
		admission.CreatedAt = time.Now().UTC()
	}
	f.db.admissions[admission.ID] = *admission
	return nil
}

func (f *fakeAdmissionStore) detail(a models.Admission) models.AdmissionDetail {
	s := f.db.students[a.StudentID]
	return models.AdmissionDetail{
		Admission:        a,
		StudentFirstName: s.FirstName,
		StudentLastName:  s.LastName,
		IndexNumber:      s.IndexNumber,
		VoucherNumber:    f.db.vouchers[a.VoucherID].VoucherNumber,
		ClassName:        f.db.classes[a.ClassID].Name,
	}
}

func (f *fakeAdmissionStore) FindByID(ctx context.Context, id string) (*models.AdmissionDetail, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.admissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := f.detail(a)
	return &d, nil
}

func (f *fakeAdmissionStore) LockByID(ctx context.Context, id string) (*models.Admission, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.admissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (f *fakeAdmissionStore) UpdateStatus(ctx context.Context, params repository.UpdateAdmissionStatusParams) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.admissions[params.ID]
	if !ok || a.Status != params.From {
		return sql.ErrNoRows
	}
	at := params.ReviewedAt
	a.Status = params.Status
	a.UpdatedAt = at
	if params.Status == models.AdmissionApproved {
		a.ApprovedAt, a.ApprovedBy = &at, params.ActorID
	} else {
		a.RejectedAt, a.RejectedBy = &at, params.ActorID
	}
	f.db.admissions[a.ID] = a
	return nil
}

func (f *fakeAdmissionStore) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionDetail, int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.AdmissionDetail
	search := strings.ToLower(filter.Search)
	for _, a := range f.db.admissions {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.ClassID != "" && a.ClassID != filter.ClassID {
			continue
		}
		if filter.AcademicYearID != "" && a.AcademicYearID != filter.AcademicYearID {
			continue
		}
		if filter.TermID != "" && a.TermID != filter.TermID {
			continue
		}
		d := f.detail(a)
		if search != "" {
			haystack := strings.ToLower(d.StudentFirstName + " " + d.StudentLastName + " " + d.VoucherNumber)
			if !strings.Contains(haystack, search) {
				continue
			}
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (f *fakeAdmissionStore) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (f *fakeAdmissionStore) AssignIndexNumber(ctx context.Context, studentID, indexNumber string, now time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.students[studentID]
	if !ok || s.IndexNumber != nil {
		return sql.ErrNoRows
	}
	s.IndexNumber = &indexNumber
	f.db.students[studentID] = s
	return nil
}

func (f *fakeAdmissionStore) ActivateStudent(ctx context.Context, studentID string, now time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.students[studentID]
	if !ok {
		return sql.ErrNoRows
	}
	s.AccountStatus = models.StudentAccountActive
	f.db.students[studentID] = s
	return nil
}

func (f *fakeAdmissionStore) NextIndexSequence(ctx context.Context) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.seq++
	return f.db.seq, nil
}

// classes

type fakeClassStore struct {
	db *fakeDB
}

func (f *fakeClassStore) FindByID(ctx context.Context, id string) (*models.Class, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (f *fakeClassStore) FindStreamByID(ctx context.Context, id string) (*models.Stream, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.streams[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (f *fakeClassStore) ListWithStreams(ctx context.Context) ([]models.ClassWithStreams, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.ClassWithStreams
	for _, c := range f.db.classes {
		item := models.ClassWithStreams{Class: c, Streams: []models.Stream{}}
		for _, s := range f.db.streams {
			if s.ClassID == c.ID {
				item.Streams = append(item.Streams, s)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// collaborators

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *fakeCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[key]++
	return c.counts[key], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []AdmissionEvent
}

func (p *recordingPublisher) Publish(event AdmissionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
