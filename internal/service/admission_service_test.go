package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type admissionHarness struct {
	*ledgerHarness
	admissions *AdmissionService
	events     *recordingPublisher
}

func newAdmissionHarness(t *testing.T) *admissionHarness {
	t.Helper()
	h := newLedgerHarness(t, VoucherServiceConfig{})
	h.db.terms["term-1"] = models.Term{ID: "term-1", AcademicYearID: testYearID, Name: "Term 1", Sequence: 1, Status: models.TermActive}
	h.db.terms["term-0"] = models.Term{ID: "term-0", AcademicYearID: testYearID, Name: "Bridging", Sequence: 2, Status: models.TermClosed}
	h.db.classes["class-10"] = models.Class{ID: "class-10", Name: "X", Level: "10"}
	h.db.classes["class-11"] = models.Class{ID: "class-11", Name: "XI", Level: "11"}
	h.db.streams["stream-sci"] = models.Stream{ID: "stream-sci", ClassID: "class-10", Name: "Science"}
	h.db.streams["stream-art"] = models.Stream{ID: "stream-art", ClassID: "class-11", Name: "Arts"}

	events := &recordingPublisher{}
	svc := NewAdmissionService(AdmissionServiceParams{
		Store:     &fakeAdmissionStore{db: h.db},
		Calendar:  &fakeCalendarStore{db: h.db},
		Classes:   &fakeClassStore{db: h.db},
		Sessions:  h.broker,
		Vouchers:  h.vouchers,
		Allocator: SequenceIndexAllocator{Prefix: "SMA"},
		Notifier:  events,
		Logger:    zap.NewNop(),
		Config:    AdmissionServiceConfig{PasswordHashCost: bcrypt.MinCost},
	})
	svc.now = h.clock.Now
	return &admissionHarness{ledgerHarness: h, admissions: svc, events: events}
}

func admissionForm(token string) dto.SubmitAdmissionRequest {
	return dto.SubmitAdmissionRequest{
		SessionToken: token,
		Student: dto.StudentPayload{
			FirstName:   "Ama",
			LastName:    "Mensah",
			Gender:      "female",
			DateOfBirth: models.DatePtr("2010-05-14"),
		},
		Guardians: []dto.GuardianPayload{{
			Name:         "Kofi Mensah",
			Relationship: "Father",
			Phone:        "+233200000000",
			Address:      "12 Ring Road",
		}},
		Medical: &dto.MedicalPayload{BloodGroup: "O+"},
		Placement: dto.PlacementPayload{
			AcademicYearID: testYearID,
			TermID:         "term-1",
			ClassID:        "class-10",
			StreamID:       "stream-sci",
		},
	}
}

func (h *admissionHarness) reserve(t *testing.T, number string) string {
	t.Helper()
	h.seed(t, number, "246810", models.VoucherUnused, h.clock.Now().Add(24*time.Hour))
	resp := h.verify(t, number, "246810")
	require.True(t, resp.Valid)
	return resp.SessionToken
}

func (h *admissionHarness) submit(t *testing.T, number string) *dto.AdmissionReceipt {
	t.Helper()
	receipt, err := h.admissions.Submit(context.Background(), admissionForm(h.reserve(t, number)))
	require.NoError(t, err)
	return receipt
}

type staticSessions struct {
	session *AdmissionSession
}

func (s staticSessions) Validate(context.Context, string) (*AdmissionSession, error) {
	return s.session, nil
}

func TestAdmissionServiceSubmit(t *testing.T) {
	h := newAdmissionHarness(t)
	token := h.reserve(t, "FORM2345")

	receipt, err := h.admissions.Submit(context.Background(), admissionForm(token))
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionPending, receipt.Status)
	assert.Equal(t, "v-FORM2345", receipt.VoucherID)
	assert.Len(t, receipt.TemporaryPassword, 12)

	assert.Equal(t, models.VoucherUsed, h.stored(t, "v-FORM2345").Status)

	student := h.db.students[receipt.StudentID]
	assert.Equal(t, "FEMALE", student.Gender)
	assert.Equal(t, models.StudentAccountPending, student.AccountStatus)
	assert.Nil(t, student.IndexNumber)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte(receipt.TemporaryPassword)))
	require.Len(t, h.db.guardians, 1)
	assert.Equal(t, receipt.StudentID, h.db.guardians[0].StudentID)
	assert.Len(t, h.db.medical, 1)

	assert.Equal(t, []string{EventAdmissionSubmitted}, h.events.types())

	_, err = h.admissions.Submit(context.Background(), admissionForm(token))
	assert.Equal(t, appErrors.ErrSessionExpired.Code, appError(t, err).Code)
	assert.Len(t, h.db.admissions, 1)
}

func TestAdmissionServiceSubmitCollectsViolations(t *testing.T) {
	h := newAdmissionHarness(t)
	token := h.reserve(t, "BAD23456")

	form := admissionForm(token)
	form.Student.FirstName = ""
	form.Student.DateOfBirth = models.DatePtr("2030-01-01")
	form.Guardians = []dto.GuardianPayload{{Name: "Kofi"}}
	form.Placement.TermID = "term-0"
	form.Placement.StreamID = "stream-art"

	_, err := h.admissions.Submit(context.Background(), form)
	appErr := appError(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.ElementsMatch(t, []string{
		`term "Bridging" is closed`,
		`stream "Arts" does not belong to the placement class`,
		"student.first_name is required",
		"student.date_of_birth must be in the past",
		"guardians[0].relationship is required",
		"guardians[0].phone is required",
		"guardians[0].address is required",
	}, appErr.Details)

	assert.Equal(t, models.VoucherReserved, h.stored(t, "v-BAD23456").Status)
	assert.Empty(t, h.db.students)
}

func TestAdmissionServiceSubmitRejectsForeignYear(t *testing.T) {
	h := newAdmissionHarness(t)
	form := admissionForm(h.reserve(t, "YEAR2345"))
	form.Placement.AcademicYearID = "year-other"
	form.Placement.ClassID = "class-missing"
	form.Placement.StreamID = ""

	_, err := h.admissions.Submit(context.Background(), form)
	appErr := appError(t, err)
	assert.Contains(t, appErr.Details, "placement academic year does not match the verified voucher")
	assert.Contains(t, appErr.Details, `term "Term 1" does not belong to the placement academic year`)
	assert.Contains(t, appErr.Details, "placement class does not exist")
}

func TestAdmissionServiceSubmitLostReservation(t *testing.T) {
	h := newAdmissionHarness(t)
	h.reserve(t, "LOST2345")

	h.admissions.sessions = staticSessions{session: &AdmissionSession{
		VoucherID:      "v-LOST2345",
		AcademicYearID: testYearID,
		ReservationID:  "superseded",
	}}

	_, err := h.admissions.Submit(context.Background(), admissionForm("ignored"))
	assert.Equal(t, appErrors.ErrVoucherNoLongerReserved.Code, appError(t, err).Code)
	assert.Equal(t, models.VoucherReserved, h.stored(t, "v-LOST2345").Status)
	assert.Empty(t, h.db.students)
	assert.Empty(t, h.db.admissions)
	assert.Empty(t, h.events.types())
}

func TestAdmissionServiceSubmitRollsBackOnFailure(t *testing.T) {
	h := newAdmissionHarness(t)
	token := h.reserve(t, "ROLL2345")
	h.db.failCreateAdmission = errors.New("disk full")

	_, err := h.admissions.Submit(context.Background(), admissionForm(token))
	assert.Equal(t, appErrors.ErrInternal.Code, appError(t, err).Code)

	assert.Equal(t, models.VoucherReserved, h.stored(t, "v-ROLL2345").Status)
	assert.Empty(t, h.db.students)
	assert.Empty(t, h.db.guardians)
	assert.Empty(t, h.db.medical)

	h.db.failCreateAdmission = nil
	_, err = h.admissions.Submit(context.Background(), admissionForm(token))
	require.NoError(t, err)
}

func TestAdmissionServiceApproveIsIdempotent(t *testing.T) {
	h := newAdmissionHarness(t)
	ctx := context.Background()
	receipt := h.submit(t, "APPR2345")

	first, err := h.admissions.Approve(ctx, receipt.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionApproved, first.Status)
	require.NotNil(t, first.IndexNumber)
	assert.Equal(t, "SMA-000001", *first.IndexNumber)
	require.NotNil(t, first.ApprovedBy)
	assert.Equal(t, "staff-1", *first.ApprovedBy)

	second, err := h.admissions.Approve(ctx, receipt.ID, "staff-2")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), h.db.seq)

	assert.Equal(t, models.StudentAccountActive, h.db.students[receipt.StudentID].AccountStatus)
	assert.Equal(t, []string{EventAdmissionSubmitted, EventAdmissionApproved}, h.events.types())

	_, err = h.admissions.Approve(ctx, "missing", "staff-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appError(t, err).Code)
}

func TestAdmissionServiceReject(t *testing.T) {
	h := newAdmissionHarness(t)
	ctx := context.Background()
	receipt := h.submit(t, "REJE2345")

	rejected, err := h.admissions.Reject(ctx, receipt.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionRejected, rejected.Status)
	assert.Equal(t, models.VoucherUsed, h.stored(t, "v-REJE2345").Status)

	again, err := h.admissions.Reject(ctx, receipt.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, rejected, again)

	approved, err := h.admissions.Approve(ctx, receipt.ID, "staff-2")
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionApproved, approved.Status)

	_, err = h.admissions.Reject(ctx, receipt.ID, "staff-1")
	assert.Equal(t, appErrors.ErrConflict.Code, appError(t, err).Code)

	assert.Equal(t, []string{EventAdmissionSubmitted, EventAdmissionRejected, EventAdmissionApproved}, h.events.types())
}

func TestAdmissionServiceBatchRoundTrip(t *testing.T) {
	h := newAdmissionHarness(t)
	ctx := context.Background()

	issued, err := h.vouchers.Generate(ctx, dto.GenerateVouchersRequest{
		AcademicYearID: testYearID,
		Count:          50,
		ExpiresAt:      h.clock.Now().Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, issued, 50)

	ids := make([]string, 0, len(issued))
	for _, voucher := range issued {
		resp := h.verify(t, voucher.VoucherNumber, voucher.PIN)
		require.True(t, resp.Valid, voucher.VoucherNumber)
		receipt, err := h.admissions.Submit(ctx, admissionForm(resp.SessionToken))
		require.NoError(t, err)
		ids = append(ids, receipt.ID)
	}
	assert.Equal(t, 50, h.db.countVouchers(models.VoucherUsed))

	indexes := map[string]bool{}
	for _, id := range ids {
		detail, err := h.admissions.Approve(ctx, id, "registrar")
		require.NoError(t, err)
		require.NotNil(t, detail.IndexNumber)
		indexes[*detail.IndexNumber] = true
	}
	assert.Len(t, indexes, 50)

	result, err := h.vouchers.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.ReleasedCount)
	assert.Equal(t, int64(0), result.ExpiredCount)

	items, page, err := h.admissions.List(ctx, dto.AdmissionQuery{Status: models.AdmissionApproved, PageSize: 100})
	require.NoError(t, err)
	assert.Len(t, items, 50)
	assert.Equal(t, 50, page.TotalCount)
}

func TestAdmissionServiceList(t *testing.T) {
	h := newAdmissionHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		h.submit(t, fmt.Sprintf("LIST234%d", i+2))
	}

	items, page, err := h.admissions.List(ctx, dto.AdmissionQuery{Search: "list2343"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "LIST2343", items[0].VoucherNumber)
	assert.Equal(t, 20, page.PageSize)

	items, _, err = h.admissions.List(ctx, dto.AdmissionQuery{ClassID: "class-11"})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, _, err = h.admissions.List(ctx, dto.AdmissionQuery{Status: "PAUSED"})
	assert.Equal(t, appErrors.ErrValidation.Code, appError(t, err).Code)
}

func TestAdmissionServicePlacementOptions(t *testing.T) {
	h := newAdmissionHarness(t)

	options, err := h.admissions.PlacementOptions(context.Background(), testYearID)
	require.NoError(t, err)
	assert.Equal(t, "2025/2026", options.AcademicYear.Name)
	require.Len(t, options.Terms, 1)
	assert.Equal(t, "term-1", options.Terms[0].ID)
	assert.Len(t, options.Classes, 2)

	_, err = h.admissions.PlacementOptions(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appError(t, err).Code)
}

func TestSequenceIndexAllocator(t *testing.T) {
	db := newFakeDB()
	store := &fakeAdmissionStore{db: db}

	first, err := SequenceIndexAllocator{}.Allocate(context.Background(), store, nil)
	require.NoError(t, err)
	second, err := SequenceIndexAllocator{Prefix: "SMA"}.Allocate(context.Background(), store, nil)
	require.NoError(t, err)

	assert.Equal(t, "IDX-000001", first)
	assert.Equal(t, "SMA-000002", second)
}
