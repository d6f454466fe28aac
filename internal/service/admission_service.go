package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

const temporaryPasswordAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type placementCalendar interface {
	FindYearByID(ctx context.Context, id string) (*models.AcademicYear, error)
	FindTermByID(ctx context.Context, id string) (*models.Term, error)
	ListTerms(ctx context.Context, yearID string) ([]models.Term, error)
}

type placementClasses interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindStreamByID(ctx context.Context, id string) (*models.Stream, error)
	ListWithStreams(ctx context.Context) ([]models.ClassWithStreams, error)
}

type sessionValidator interface {
	Validate(ctx context.Context, token string) (*AdmissionSession, error)
}

type reservationConsumer interface {
	ConsumeReservation(ctx context.Context, store repository.VoucherStore, session *AdmissionSession) error
}

type admissionPublisher interface {
	Publish(event AdmissionEvent)
}

// AdmissionServiceConfig bounds the workflow's store and collaborator calls.
type AdmissionServiceConfig struct {
	ExternalTimeout       time.Duration
	TemporaryPasswordSize int
	PasswordHashCost      int
}

// AdmissionService implements submission and review of admissions.
type AdmissionService struct {
	store     repository.AdmissionStore
	calendar  placementCalendar
	classes   placementClasses
	sessions  sessionValidator
	vouchers  reservationConsumer
	allocator IndexAllocator
	notifier  admissionPublisher
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       AdmissionServiceConfig
	now       func() time.Time
}

// AdmissionServiceParams groups the workflow's collaborators.
type AdmissionServiceParams struct {
	Store     repository.AdmissionStore
	Calendar  placementCalendar
	Classes   placementClasses
	Sessions  sessionValidator
	Vouchers  reservationConsumer
	Allocator IndexAllocator
	Notifier  admissionPublisher
	Metrics   *MetricsService
	Logger    *zap.Logger
	Config    AdmissionServiceConfig
}

// NewAdmissionService constructs the admission workflow.
func NewAdmissionService(params AdmissionServiceParams) *AdmissionService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allocator := params.Allocator
	if allocator == nil {
		allocator = SequenceIndexAllocator{}
	}
	cfg := params.Config
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = 5 * time.Second
	}
	if cfg.TemporaryPasswordSize <= 0 {
		cfg.TemporaryPasswordSize = 12
	}
	if cfg.PasswordHashCost < bcrypt.MinCost || cfg.PasswordHashCost > bcrypt.MaxCost {
		cfg.PasswordHashCost = bcrypt.DefaultCost
	}
	return &AdmissionService{
		store:     params.Store,
		calendar:  params.Calendar,
		classes:   params.Classes,
		sessions:  params.Sessions,
		vouchers:  params.Vouchers,
		allocator: allocator,
		notifier:  params.Notifier,
		metrics:   params.Metrics,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores a pending admission for the voucher reserved by req.SessionToken. The
// voucher is consumed in the same transaction that creates the student and admission.
func (s *AdmissionService) Submit(ctx context.Context, req dto.SubmitAdmissionRequest) (*dto.AdmissionReceipt, error) {
	session, err := s.sessions.Validate(ctx, req.SessionToken)
	if err != nil {
		return nil, err
	}

	details, err := s.checkPlacement(ctx, session, req.Placement)
	if err != nil {
		return nil, err
	}
	details = append(details, checkApplicant(req, s.now())...)
	if len(details) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "admission form is incomplete", details)
	}

	password, err := randomString(temporaryPasswordAlphabet, s.cfg.TemporaryPasswordSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate temporary password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.PasswordHashCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash temporary password")
	}

	student := buildStudent(req.Student, string(hash))
	admission := &models.Admission{
		StudentID:      student.ID,
		VoucherID:      session.VoucherID,
		AcademicYearID: req.Placement.AcademicYearID,
		TermID:         req.Placement.TermID,
		ClassID:        req.Placement.ClassID,
		StreamID:       optional(req.Placement.StreamID),
		Status:         models.AdmissionPending,
	}

	txCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalTimeout)
	defer cancel()
	err = s.store.WithinTx(txCtx, func(tx repository.AdmissionStore) error {
		if err := s.vouchers.ConsumeReservation(txCtx, tx.Vouchers(), session); err != nil {
			return err
		}
		if err := tx.CreateStudent(txCtx, student); err != nil {
			return err
		}
		if err := tx.CreateGuardians(txCtx, buildGuardians(student.ID, req.Guardians)); err != nil {
			return err
		}
		if req.Medical != nil {
			if err := tx.CreateMedicalRecord(txCtx, buildMedical(student.ID, *req.Medical)); err != nil {
				return err
			}
		}
		return tx.CreateAdmission(txCtx, admission)
	})
	if err != nil {
		if repository.IsUniqueViolation(err, repository.ConstraintAdmissionVoucher) {
			return nil, appErrors.Clone(appErrors.ErrVoucherNoLongerReserved, "voucher already has an admission")
		}
		return nil, storeError(err, "", "submit admission")
	}

	s.metrics.RecordAdmissionTransition(string(models.AdmissionPending))
	s.logger.Info("admission submitted",
		zap.String("admission_id", admission.ID),
		zap.String("voucher_id", admission.VoucherID),
		zap.String("class_id", admission.ClassID))
	s.publish(EventAdmissionSubmitted, admission, "")
	return &dto.AdmissionReceipt{Admission: *admission, TemporaryPassword: password}, nil
}

// Approve finalises an admission. Approving an approved admission returns it unchanged;
// a rejected admission may be approved on reconsideration.
func (s *AdmissionService) Approve(ctx context.Context, id, actorID string) (*models.AdmissionDetail, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalTimeout)
	defer cancel()

	changed := false
	err := s.store.WithinTx(txCtx, func(tx repository.AdmissionStore) error {
		admission, err := tx.LockByID(txCtx, id)
		if err != nil {
			return err
		}
		if admission.Status == models.AdmissionApproved {
			return nil
		}
		student, err := tx.FindStudent(txCtx, admission.StudentID)
		if err != nil {
			return err
		}
		now := s.now()
		if student.IndexNumber == nil {
			index, err := s.allocator.Allocate(txCtx, tx, student)
			if err != nil {
				return err
			}
			if err := tx.AssignIndexNumber(txCtx, student.ID, index, now); err != nil {
				return err
			}
		}
		if student.AccountStatus != models.StudentAccountActive {
			if err := tx.ActivateStudent(txCtx, student.ID, now); err != nil {
				return err
			}
		}
		changed = true
		return tx.UpdateStatus(txCtx, repository.UpdateAdmissionStatusParams{
			ID:         admission.ID,
			From:       admission.Status,
			Status:     models.AdmissionApproved,
			ActorID:    optional(actorID),
			ReviewedAt: now,
		})
	})
	if err != nil {
		return nil, storeError(err, "admission not found", "approve admission")
	}

	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordAdmissionTransition(string(models.AdmissionApproved))
		s.logger.Info("admission approved", zap.String("admission_id", id), zap.String("actor_id", actorID))
		index := ""
		if detail.IndexNumber != nil {
			index = *detail.IndexNumber
		}
		s.publish(EventAdmissionApproved, &detail.Admission, index)
	}
	return detail, nil
}

// Reject marks a pending admission rejected. The consumed voucher stays used.
func (s *AdmissionService) Reject(ctx context.Context, id, actorID string) (*models.AdmissionDetail, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalTimeout)
	defer cancel()

	changed := false
	err := s.store.WithinTx(txCtx, func(tx repository.AdmissionStore) error {
		admission, err := tx.LockByID(txCtx, id)
		if err != nil {
			return err
		}
		switch admission.Status {
		case models.AdmissionRejected:
			return nil
		case models.AdmissionApproved:
			return appErrors.Clone(appErrors.ErrConflict, "approved admissions cannot be rejected")
		}
		changed = true
		return tx.UpdateStatus(txCtx, repository.UpdateAdmissionStatusParams{
			ID:         admission.ID,
			From:       admission.Status,
			Status:     models.AdmissionRejected,
			ActorID:    optional(actorID),
			ReviewedAt: s.now(),
		})
	})
	if err != nil {
		return nil, storeError(err, "admission not found", "reject admission")
	}

	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordAdmissionTransition(string(models.AdmissionRejected))
		s.logger.Info("admission rejected", zap.String("admission_id", id), zap.String("actor_id", actorID))
		s.publish(EventAdmissionRejected, &detail.Admission, "")
	}
	return detail, nil
}

// Get returns one admission with its listing labels.
func (s *AdmissionService) Get(ctx context.Context, id string) (*models.AdmissionDetail, error) {
	detail, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "admission not found", "load admission")
	}
	return detail, nil
}

// List returns admissions matching every provided filter.
func (s *AdmissionService) List(ctx context.Context, query dto.AdmissionQuery) ([]models.AdmissionDetail, *models.Pagination, error) {
	if query.Status != "" && !query.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown admission status %q", query.Status))
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}
	items, total, err := s.store.List(ctx, models.AdmissionFilter{
		Status:         query.Status,
		ClassID:        query.ClassID,
		AcademicYearID: query.AcademicYearID,
		TermID:         query.TermID,
		Search:         strings.TrimSpace(query.Search),
		Limit:          size,
		Offset:         (page - 1) * size,
	})
	if err != nil {
		return nil, nil, storeError(err, "", "list admissions")
	}
	if items == nil {
		items = []models.AdmissionDetail{}
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// PlacementOptions lists the terms and classes an applicant for yearID may choose.
func (s *AdmissionService) PlacementOptions(ctx context.Context, yearID string) (*dto.PlacementOptions, error) {
	year, err := s.calendar.FindYearByID(ctx, yearID)
	if err != nil {
		return nil, storeError(err, "academic year not found", "load academic year")
	}
	terms, err := s.calendar.ListTerms(ctx, yearID)
	if err != nil {
		return nil, storeError(err, "", "list terms")
	}
	open := make([]models.Term, 0, len(terms))
	for _, term := range terms {
		if term.Status != models.TermClosed {
			open = append(open, term)
		}
	}
	classes, err := s.classes.ListWithStreams(ctx)
	if err != nil {
		return nil, storeError(err, "", "list classes")
	}
	if classes == nil {
		classes = []models.ClassWithStreams{}
	}
	return &dto.PlacementOptions{AcademicYear: *year, Terms: open, Classes: classes}, nil
}

// checkPlacement returns every placement problem. Only store failures are returned as errors.
func (s *AdmissionService) checkPlacement(ctx context.Context, session *AdmissionSession, placement dto.PlacementPayload) ([]string, error) {
	var details []string
	if placement.AcademicYearID == "" {
		details = append(details, "placement.academic_year_id is required")
	} else if placement.AcademicYearID != session.AcademicYearID {
		details = append(details, "placement academic year does not match the verified voucher")
	} else {
		year, err := s.calendar.FindYearByID(ctx, placement.AcademicYearID)
		switch {
		case isNotFound(err):
			details = append(details, "placement academic year does not exist")
		case err != nil:
			return nil, storeError(err, "", "load academic year")
		case year.Status == models.AcademicYearArchived:
			details = append(details, fmt.Sprintf("academic year %q is archived", year.Name))
		}
	}

	if placement.TermID == "" {
		details = append(details, "placement.term_id is required")
	} else {
		term, err := s.calendar.FindTermByID(ctx, placement.TermID)
		switch {
		case isNotFound(err):
			details = append(details, "placement term does not exist")
		case err != nil:
			return nil, storeError(err, "", "load term")
		case term.AcademicYearID != placement.AcademicYearID:
			details = append(details, fmt.Sprintf("term %q does not belong to the placement academic year", term.Name))
		case term.Status == models.TermClosed:
			details = append(details, fmt.Sprintf("term %q is closed", term.Name))
		}
	}

	if placement.ClassID == "" {
		details = append(details, "placement.class_id is required")
		return details, nil
	}
	if _, err := s.classes.FindByID(ctx, placement.ClassID); err != nil {
		if !isNotFound(err) {
			return nil, storeError(err, "", "load class")
		}
		details = append(details, "placement class does not exist")
	}
	if placement.StreamID != "" {
		stream, err := s.classes.FindStreamByID(ctx, placement.StreamID)
		switch {
		case isNotFound(err):
			details = append(details, "placement stream does not exist")
		case err != nil:
			return nil, storeError(err, "", "load stream")
		case stream.ClassID != placement.ClassID:
			details = append(details, fmt.Sprintf("stream %q does not belong to the placement class", stream.Name))
		}
	}
	return details, nil
}

func (s *AdmissionService) publish(eventType string, admission *models.Admission, indexNumber string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(AdmissionEvent{
		Type:        eventType,
		AdmissionID: admission.ID,
		StudentID:   admission.StudentID,
		Status:      string(admission.Status),
		IndexNumber: indexNumber,
	})
}

func checkApplicant(req dto.SubmitAdmissionRequest, now time.Time) []string {
	var details []string
	student := req.Student
	if strings.TrimSpace(student.FirstName) == "" {
		details = append(details, "student.first_name is required")
	}
	if strings.TrimSpace(student.LastName) == "" {
		details = append(details, "student.last_name is required")
	}
	if strings.TrimSpace(student.Gender) == "" {
		details = append(details, "student.gender is required")
	}
	if student.DateOfBirth == nil || student.DateOfBirth.IsZero() {
		details = append(details, "student.date_of_birth is required")
	} else if !student.DateOfBirth.Before(now) {
		details = append(details, "student.date_of_birth must be in the past")
	}

	if len(req.Guardians) == 0 {
		details = append(details, "at least one guardian is required")
	}
	for i, guardian := range req.Guardians {
		required := map[string]string{
			"name":         guardian.Name,
			"relationship": guardian.Relationship,
			"phone":        guardian.Phone,
			"address":      guardian.Address,
		}
		for _, field := range []string{"name", "relationship", "phone", "address"} {
			if strings.TrimSpace(required[field]) == "" {
				details = append(details, fmt.Sprintf("guardians[%d].%s is required", i, field))
			}
		}
	}
	return details
}

func buildStudent(payload dto.StudentPayload, passwordHash string) *models.Student {
	return &models.Student{
		ID:            uuid.NewString(),
		FirstName:     strings.TrimSpace(payload.FirstName),
		MiddleName:    optional(strings.TrimSpace(payload.MiddleName)),
		LastName:      strings.TrimSpace(payload.LastName),
		Gender:        strings.ToUpper(strings.TrimSpace(payload.Gender)),
		DateOfBirth:   *payload.DateOfBirth,
		Nationality:   optional(strings.TrimSpace(payload.Nationality)),
		Address:       optional(strings.TrimSpace(payload.Address)),
		AccountStatus: models.StudentAccountPending,
		PasswordHash:  passwordHash,
	}
}

func buildGuardians(studentID string, payloads []dto.GuardianPayload) []models.Guardian {
	guardians := make([]models.Guardian, 0, len(payloads))
	for _, p := range payloads {
		guardians = append(guardians, models.Guardian{
			StudentID:    studentID,
			Name:         strings.TrimSpace(p.Name),
			Relationship: strings.TrimSpace(p.Relationship),
			Phone:        strings.TrimSpace(p.Phone),
			Email:        optional(strings.TrimSpace(p.Email)),
			Address:      strings.TrimSpace(p.Address),
			Occupation:   optional(strings.TrimSpace(p.Occupation)),
		})
	}
	return guardians
}

func buildMedical(studentID string, payload dto.MedicalPayload) *models.MedicalRecord {
	return &models.MedicalRecord{
		StudentID:  studentID,
		BloodGroup: optional(strings.TrimSpace(payload.BloodGroup)),
		Allergies:  optional(strings.TrimSpace(payload.Allergies)),
		Conditions: optional(strings.TrimSpace(payload.Conditions)),
		Notes:      optional(strings.TrimSpace(payload.Notes)),
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func isNotFound(err error) bool {
	return err != nil && appErrors.HasCode(storeError(err, "not found", "load"), appErrors.ErrNotFound.Code)
}
