package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

const (
	calendarCachePattern  = "calendar:*"
	calendarYearsKey      = "calendar:years"
	calendarActiveYearKey = "calendar:years:active"
)

type calendarCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// CalendarService is the single write path for academic years and terms. Every write
// re-checks the calendar rules inside a serializable transaction.
type CalendarService struct {
	store     repository.CalendarStore
	cache     calendarCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCalendarService constructs the calendar service. cache may be nil.
func NewCalendarService(store repository.CalendarStore, cache calendarCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CalendarService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{store: store, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// ListYears returns every academic year.
func (s *CalendarService) ListYears(ctx context.Context) ([]models.AcademicYear, error) {
	var cached []models.AcademicYear
	if s.cacheGet(ctx, calendarYearsKey, &cached) {
		return cached, nil
	}
	years, err := s.store.ListYears(ctx)
	if err != nil {
		return nil, storeError(err, "", "list academic years")
	}
	if years == nil {
		years = []models.AcademicYear{}
	}
	s.cacheSet(ctx, calendarYearsKey, years)
	return years, nil
}

// GetYear returns an academic year by ID.
func (s *CalendarService) GetYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.store.FindYearByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "academic year not found", "load academic year")
	}
	return year, nil
}

// GetActiveYear returns the single active year or NotFound.
func (s *CalendarService) GetActiveYear(ctx context.Context) (*models.AcademicYear, error) {
	var cached models.AcademicYear
	if s.cacheGet(ctx, calendarActiveYearKey, &cached) {
		return &cached, nil
	}
	years, err := s.store.FindActiveYears(ctx, "")
	if err != nil {
		return nil, storeError(err, "", "load active academic year")
	}
	if len(years) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active academic year")
	}
	if len(years) > 1 {
		s.logger.Error("multiple active academic years found", zap.Int("count", len(years)))
	}
	s.cacheSet(ctx, calendarActiveYearKey, years[0])
	return &years[0], nil
}

// CreateYear validates and stores a new academic year.
func (s *CalendarService) CreateYear(ctx context.Context, req dto.CreateYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, payloadError(err, "invalid academic year payload")
	}
	year := newYearFromRequest(req)

	err := s.store.WithinTx(ctx, func(tx repository.CalendarStore) error {
		check, err := s.planYear(ctx, tx, nil, year)
		if err != nil {
			return err
		}
		if err := check.err("academic year violates calendar rules"); err != nil {
			return err
		}
		return tx.CreateYear(ctx, year)
	})
	if err != nil {
		return nil, storeError(err, "", "create academic year")
	}
	s.invalidate(ctx)
	s.logger.Info("academic year created", zap.String("year_id", year.ID), zap.String("status", string(year.Status)))
	return year, nil
}

// CheckCreateYear reports whether CreateYear would accept req, without writing.
func (s *CalendarService) CheckCreateYear(ctx context.Context, req dto.CreateYearRequest) (*dto.ViolationReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, payloadError(err, "invalid academic year payload")
	}
	check, err := s.planYear(ctx, s.store, nil, newYearFromRequest(req))
	if err != nil {
		return nil, storeError(err, "", "check academic year")
	}
	return check.report(), nil
}

// UpdateYear applies a patch after re-validating the merged state.
func (s *CalendarService) UpdateYear(ctx context.Context, id string, req dto.UpdateYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, payloadError(err, "invalid academic year payload")
	}
	var updated *models.AcademicYear
	err := s.store.WithinTx(ctx, func(tx repository.CalendarStore) error {
		current, err := tx.LockYear(ctx, id)
		if err != nil {
			return err
		}
		proposed := mergeYear(*current, req)
		check, err := s.planYear(ctx, tx, current, &proposed)
		if err != nil {
			return err
		}
		if err := check.err("academic year violates calendar rules"); err != nil {
			return err
		}
		if err := tx.UpdateYear(ctx, &proposed); err != nil {
			return err
		}
		updated = &proposed
		return nil
	})
	if err != nil {
		return nil, storeError(err, "academic year not found", "update academic year")
	}
	s.invalidate(ctx)
	s.logger.Info("academic year updated", zap.String("year_id", id), zap.String("status", string(updated.Status)))
	return updated, nil
}

// CheckUpdateYear reports whether UpdateYear would accept req, without writing.
func (s *CalendarService) CheckUpdateYear(ctx context.Context, id string, req dto.UpdateYearRequest) (*dto.ViolationReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, payloadError(err, "invalid academic year payload")
	}
	current, err := s.store.FindYearByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "academic year not found", "check academic year")
	}
	proposed := mergeYear(*current, req)
	check, err := s.planYear(ctx, s.store, current, &proposed)
	if err != nil {
		return nil, storeError(err, "", "check academic year")
	}
	return check.report(), nil
}

// DeleteYear removes a year that nothing references.
func (s *CalendarService) DeleteYear(ctx context.Context, id string) error {
	err := s.store.WithinTx(ctx, func(tx repository.CalendarStore) error {
		year, err := tx.LockYear(ctx, id)
		if err != nil {
			return err
		}
		refs, err := tx.CountYearReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs.Total() > 0 {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf(
				"academic year %q is referenced by %d terms, %d vouchers and %d admissions; archive it instead",
				year.Name, refs.Terms, refs.Vouchers, refs.Admissions))
		}
		return tx.DeleteYear(ctx, id)
	})
	if err != nil {
		return storeError(err, "academic year not found", "delete academic year")
	}
	s.invalidate(ctx)
	s.logger.Info("academic year deleted", zap.String("year_id", id))
	return nil
}

// ListTerms returns the terms of a year.
func (s *CalendarService) ListTerms(ctx context.Context, yearID string) ([]models.Term, error) {
	if _, err := s.store.FindYearByID(ctx, yearID); err != nil {
		return nil, storeError(err, "academic year not found", "load academic year")
	}
	terms, err := s.store.ListTerms(ctx, yearID)
	if err != nil {
		return nil, storeError(err, "", "list terms")
	}
	if terms == nil {
		terms = []models.Term{}
	}
	return terms, nil
}

// GetTerm loads a term and confirms it belongs to yearID.
func (s *CalendarService) GetTerm(ctx context.Context, yearID, termID string) (*models.Term, error) {
	term, err := s.store.FindTermByID(ctx, termID)
	if err != nil {
		return nil, storeError(err, "term not found", "load term")
	}
	if term.AcademicYearID != yearID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
	}
	return term, nil
}

// CreateTerm validates a new term against its siblings and stores it.
func (s *CalendarService) CreateTerm(ctx context.Context, yearID string, req dto.CreateTermRequest) (*models.Term, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, payloadError(err, "invalid term payload")
	}
	term := newTermFromRequest(yearID, req)

	err := s.store.WithinTx(ctx, func(tx repository.CalendarStore) error {
		year, err := tx.LockYear(ctx, yearID)
		if err != nil {
			return err
		}
		check, err := s.planTerm(ctx, tx, *year, nil, term)
		if err != nil {
			return err
		}
		if err := check.err("term violates calendar rules"); err != nil {
			return err
		}
		return tx.CreateTerm(ctx, term)
	})
	if err != nil {
		return nil, storeError(err, "academic year not found", "create term")
	}
	s.invalidate(ctx)
	s.logger.Info("term created", zap.String("year_id", yearID), zap.String("term_id", term.ID))
	return term, nil
}

// CheckCreateTerm reports whether CreateTerm would accept req, without writing.
func (s *CalendarService) CheckCreateTerm(ctx context.Context, yearID string, req dto.CreateTermRequest) (*dto.ViolationReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, payloadError(err, "invalid term payload")
	}
	year, err := s.store.FindYearByID(ctx, yearID)
	if err != nil {
		return nil, storeError(err, "academic year not found", "check term")
	}
	check, err := s.planTerm(ctx, s.store, *year, nil, newTermFromRequest(yearID, req))
	if err != nil {
		return nil, storeError(err, "", "check term")
	}
	return check.report(), nil
}

// UpdateTerm applies a patch after re-validating the merged term.
func (s *CalendarService) UpdateTerm(ctx context.Context, yearID, termID string, req dto.UpdateTermRequest) (*models.Term, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, payloadError(err, "invalid term payload")
	}
	var updated *models.Term
	err := s.store.WithinTx(ctx, func(tx repository.CalendarStore) error {
		year, err := tx.LockYear(ctx, yearID)
		if err != nil {
			return err
		}
		current, err := tx.FindTermByID(ctx, termID)
		if err != nil {
			return err
		}
		if current.AcademicYearID != yearID {
			return appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		proposed := mergeTerm(*current, req)
		check, err := s.planTerm(ctx, tx, *year, current, &proposed)
		if err != nil {
			return err
		}
		if err := check.err("term violates calendar rules"); err != nil {
			return err
		}
		if err := tx.UpdateTerm(ctx, &proposed); err != nil {
			return err
		}
		updated = &proposed
		return nil
	})
	if err != nil {
		return nil, storeError(err, "term not found", "update term")
	}
	s.invalidate(ctx)
	s.logger.Info("term updated", zap.String("term_id", termID), zap.String("status", string(updated.Status)))
	return updated, nil
}

// CheckUpdateTerm reports whether UpdateTerm would accept req, without writing.
func (s *CalendarService) CheckUpdateTerm(ctx context.Context, yearID, termID string, req dto.UpdateTermRequest) (*dto.ViolationReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, payloadError(err, "invalid term payload")
	}
	year, err := s.store.FindYearByID(ctx, yearID)
	if err != nil {
		return nil, storeError(err, "academic year not found", "check term")
	}
	current, err := s.GetTerm(ctx, yearID, termID)
	if err != nil {
		return nil, err
	}
	proposed := mergeTerm(*current, req)
	check, err := s.planTerm(ctx, s.store, *year, current, &proposed)
	if err != nil {
		return nil, storeError(err, "", "check term")
	}
	return check.report(), nil
}

// DeleteTerm removes a term no admission is placed into.
func (s *CalendarService) DeleteTerm(ctx context.Context, yearID, termID string) error {
	err := s.store.WithinTx(ctx, func(tx repository.CalendarStore) error {
		if _, err := tx.LockYear(ctx, yearID); err != nil {
			return err
		}
		term, err := tx.FindTermByID(ctx, termID)
		if err != nil {
			return err
		}
		if term.AcademicYearID != yearID {
			return appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		count, err := tx.CountTermAdmissions(ctx, termID)
		if err != nil {
			return err
		}
		if count > 0 {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("term %q is referenced by %d admissions", term.Name, count))
		}
		return tx.DeleteTerm(ctx, termID)
	})
	if err != nil {
		return storeError(err, "term not found", "delete term")
	}
	s.invalidate(ctx)
	s.logger.Info("term deleted", zap.String("year_id", yearID), zap.String("term_id", termID))
	return nil
}

func (s *CalendarService) planYear(ctx context.Context, store repository.CalendarStore, current, proposed *models.AcademicYear) (*calendarCheck, error) {
	check := &calendarCheck{}
	exists, err := store.YearNameExists(ctx, proposed.Name, proposed.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		check.conflict("academic year %q already exists", proposed.Name)
	}

	var otherActive []models.AcademicYear
	if proposed.Status == models.AcademicYearActive {
		if otherActive, err = store.FindActiveYears(ctx, proposed.ID); err != nil {
			return nil, err
		}
	}
	var terms []models.Term
	if current != nil {
		if terms, err = store.ListTerms(ctx, current.ID); err != nil {
			return nil, err
		}
	}
	checkYear(check, current, *proposed, otherActive, terms)
	return check, nil
}

func (s *CalendarService) planTerm(ctx context.Context, store repository.CalendarStore, year models.AcademicYear, current, proposed *models.Term) (*calendarCheck, error) {
	terms, err := store.ListTerms(ctx, year.ID)
	if err != nil {
		return nil, err
	}
	siblings := make([]models.Term, 0, len(terms))
	for _, term := range terms {
		if term.ID != proposed.ID {
			siblings = append(siblings, term)
		}
	}
	var otherActive []models.Term
	if proposed.Status == models.TermActive {
		if otherActive, err = store.FindActiveTerms(ctx, proposed.ID); err != nil {
			return nil, err
		}
	}
	check := &calendarCheck{}
	checkTerm(check, year, current, *proposed, siblings, otherActive)
	return check, nil
}

func (s *CalendarService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	return err == nil && hit
}

func (s *CalendarService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, key, value, s.cacheTTL)
}

func (s *CalendarService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, calendarCachePattern); err != nil {
		s.logger.Warn("calendar cache invalidation failed", zap.Error(err))
	}
}

func newYearFromRequest(req dto.CreateYearRequest) *models.AcademicYear {
	status := req.Status
	if status == "" {
		status = models.AcademicYearDraft
	}
	return &models.AcademicYear{
		Name:      strings.TrimSpace(req.Name),
		Status:    status,
		StartDate: req.StartDate.OrNil(),
		EndDate:   req.EndDate.OrNil(),
	}
}

func mergeYear(current models.AcademicYear, req dto.UpdateYearRequest) models.AcademicYear {
	if req.Name != nil {
		current.Name = strings.TrimSpace(*req.Name)
	}
	if req.Status != nil {
		current.Status = *req.Status
	}
	if req.ClearDates {
		current.StartDate, current.EndDate = nil, nil
	}
	if req.StartDate != nil {
		current.StartDate = req.StartDate.OrNil()
	}
	if req.EndDate != nil {
		current.EndDate = req.EndDate.OrNil()
	}
	return current
}

func newTermFromRequest(yearID string, req dto.CreateTermRequest) *models.Term {
	status := req.Status
	if status == "" {
		status = models.TermDraft
	}
	return &models.Term{
		AcademicYearID:  yearID,
		Name:            strings.TrimSpace(req.Name),
		Status:          status,
		Sequence:        req.Sequence,
		StartDate:       req.StartDate.OrNil(),
		EndDate:         req.EndDate.OrNil(),
		ResultOpenDate:  req.ResultOpenDate.OrNil(),
		ResultCloseDate: req.ResultCloseDate.OrNil(),
	}
}

func mergeTerm(current models.Term, req dto.UpdateTermRequest) models.Term {
	if req.Name != nil {
		current.Name = strings.TrimSpace(*req.Name)
	}
	if req.Status != nil {
		current.Status = *req.Status
	}
	if req.Sequence != nil {
		current.Sequence = *req.Sequence
	}
	if req.StartDate != nil {
		current.StartDate = req.StartDate.OrNil()
	}
	if req.EndDate != nil {
		current.EndDate = req.EndDate.OrNil()
	}
	if req.ResultOpenDate != nil {
		current.ResultOpenDate = req.ResultOpenDate.OrNil()
	}
	if req.ResultCloseDate != nil {
		current.ResultCloseDate = req.ResultCloseDate.OrNil()
	}
	return current
}
