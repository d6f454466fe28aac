package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

const (
	voucherNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	pinAlphabet           = "0123456789"
	maxNumberCollisions   = 8
)

type voucherYearReader interface {
	FindYearByID(ctx context.Context, id string) (*models.AcademicYear, error)
}

type attemptCounter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// VoucherServiceConfig tunes voucher issuance and verification.
type VoucherServiceConfig struct {
	NumberLength      int
	PINLength         int
	PINHashCost       int
	MaxBatch          int
	VerifyMaxAttempts int
	VerifyWindow      time.Duration
}

// VoucherService is the voucher ledger: it owns every e-voucher state transition.
type VoucherService struct {
	store     repository.VoucherStore
	years     voucherYearReader
	sessions  *SessionBroker
	attempts  attemptCounter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       VoucherServiceConfig
	dummyHash []byte
	now       func() time.Time
}

// NewVoucherService constructs the voucher ledger. attempts and metrics may be nil.
func NewVoucherService(store repository.VoucherStore, years voucherYearReader, sessions *SessionBroker, attempts attemptCounter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg VoucherServiceConfig) *VoucherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NumberLength <= 0 {
		cfg.NumberLength = 10
	}
	if cfg.PINLength <= 0 {
		cfg.PINLength = 6
	}
	if cfg.PINHashCost < bcrypt.MinCost || cfg.PINHashCost > bcrypt.MaxCost {
		cfg.PINHashCost = bcrypt.DefaultCost
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 1000
	}
	if cfg.VerifyWindow <= 0 {
		cfg.VerifyWindow = 15 * time.Minute
	}
	// Unknown numbers are compared against this hash so the NotFound path costs the same as a PIN check.
	dummy, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cfg.PINHashCost)
	return &VoucherService{
		store:     store,
		years:     years,
		sessions:  sessions,
		attempts:  attempts,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		dummyHash: dummy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *VoucherService) ttl() time.Duration {
	return s.sessions.TTL()
}

// Generate issues count vouchers for a year. The plaintext PINs exist only in the
// returned slice.
func (s *VoucherService) Generate(ctx context.Context, req dto.GenerateVouchersRequest) ([]models.IssuedVoucher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, payloadError(err, "invalid voucher batch payload")
	}
	now := s.now()
	var details []string
	if req.Count < 1 || req.Count > s.cfg.MaxBatch {
		details = append(details, fmt.Sprintf("count must be between 1 and %d", s.cfg.MaxBatch))
	}
	if !req.ExpiresAt.After(now) {
		details = append(details, "expires_at must be in the future")
	}
	if len(details) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid voucher batch", details)
	}

	year, err := s.years.FindYearByID(ctx, req.AcademicYearID)
	if err != nil {
		return nil, storeError(err, "academic year not found", "load academic year")
	}
	if year.Status == models.AcademicYearArchived {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("academic year %q is archived", year.Name))
	}

	issued := make([]models.IssuedVoucher, 0, req.Count)
	err = s.store.WithinTx(ctx, func(tx repository.VoucherStore) error {
		for i := 0; i < req.Count; i++ {
			voucher, err := s.issueOne(ctx, tx, year.ID, req.ExpiresAt.UTC(), now)
			if err != nil {
				return err
			}
			issued = append(issued, *voucher)
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "", "generate vouchers")
	}

	s.metrics.RecordGenerated(len(issued))
	s.logger.Info("vouchers generated",
		zap.String("academic_year_id", year.ID),
		zap.Int("count", len(issued)),
		zap.Time("expires_at", req.ExpiresAt))
	return issued, nil
}

func (s *VoucherService) issueOne(ctx context.Context, tx repository.VoucherStore, yearID string, expiresAt, now time.Time) (*models.IssuedVoucher, error) {
	pin, err := randomString(pinAlphabet, s.cfg.PINLength)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.cfg.PINHashCost)
	if err != nil {
		return nil, fmt.Errorf("hash voucher pin: %w", err)
	}
	for attempt := 0; attempt < maxNumberCollisions; attempt++ {
		number, err := randomString(voucherNumberAlphabet, s.cfg.NumberLength)
		if err != nil {
			return nil, err
		}
		voucher := models.EVoucher{
			ID:             uuid.NewString(),
			VoucherNumber:  number,
			PINHash:        string(hash),
			AcademicYearID: yearID,
			Status:         models.VoucherUnused,
			ExpiresAt:      expiresAt,
			CreatedAt:      now,
		}
		inserted, err := tx.InsertIfAbsent(ctx, &voucher)
		if err != nil {
			return nil, err
		}
		if inserted {
			return &models.IssuedVoucher{EVoucher: voucher, PIN: pin}, nil
		}
	}
	return nil, fmt.Errorf("voucher number space exhausted after %d attempts", maxNumberCollisions)
}

// Verify checks a number/PIN pair and, on success, reserves the voucher and issues an
// admission session. Failures are reported through the response reason.
func (s *VoucherService) Verify(ctx context.Context, req dto.VerifyVoucherRequest) (*dto.VerifyVoucherResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, payloadError(err, "invalid verification payload")
	}
	number := normalizeVoucherNumber(req.VoucherNumber)
	if err := s.throttle(ctx, number); err != nil {
		return nil, err
	}

	voucher, err := s.store.FindByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.PIN))
			return s.reject(models.ReasonNotFound), nil
		}
		return nil, storeError(err, "", "load voucher")
	}
	if bcrypt.CompareHashAndPassword([]byte(voucher.PINHash), []byte(req.PIN)) != nil {
		return s.reject(models.ReasonInvalidPIN), nil
	}

	now := s.now()
	if reason, blocked := s.blockingReason(voucher, now); blocked {
		return s.reject(reason), nil
	}

	reservationID := uuid.NewString()
	if err := s.store.Reserve(ctx, voucher.ID, reservationID, now, now.Add(-s.ttl())); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, storeError(err, "", "reserve voucher")
		}
		current, err := s.store.FindByID(ctx, voucher.ID)
		if err != nil {
			return nil, storeError(err, "", "load voucher")
		}
		reason, blocked := s.blockingReason(current, s.now())
		if !blocked {
			reason = models.ReasonReserved
		}
		return s.reject(reason), nil
	}

	token, expiresAt, err := s.sessions.Issue(voucher, reservationID, now)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordVerification("ok")
	s.logger.Info("voucher reserved", zap.String("voucher_id", voucher.ID), zap.String("academic_year_id", voucher.AcademicYearID))
	return &dto.VerifyVoucherResponse{
		Valid:          true,
		SessionToken:   token,
		AcademicYearID: voucher.AcademicYearID,
		ExpiresAt:      &expiresAt,
	}, nil
}

// blockingReason reports why voucher cannot be reserved right now. A reservation whose
// TTL has lapsed does not block.
func (s *VoucherService) blockingReason(voucher *models.EVoucher, now time.Time) (models.VerifyReason, bool) {
	switch voucher.EffectiveStatus(now) {
	case models.VoucherRevoked:
		return models.ReasonRevoked, true
	case models.VoucherUsed:
		return models.ReasonUsed, true
	case models.VoucherExpired:
		return models.ReasonExpired, true
	case models.VoucherReserved:
		if voucher.ReservationLive(now, s.ttl()) {
			return models.ReasonReserved, true
		}
	}
	return "", false
}

func (s *VoucherService) reject(reason models.VerifyReason) *dto.VerifyVoucherResponse {
	s.metrics.RecordVerification(string(reason))
	return &dto.VerifyVoucherResponse{Valid: false, Reason: reason}
}

func (s *VoucherService) throttle(ctx context.Context, number string) error {
	if s.attempts == nil || s.cfg.VerifyMaxAttempts <= 0 {
		return nil
	}
	count, err := s.attempts.Increment(ctx, "voucher:verify:"+number, s.cfg.VerifyWindow)
	if err != nil {
		s.logger.Warn("verify throttle unavailable", zap.Error(err))
		return nil
	}
	if count > int64(s.cfg.VerifyMaxAttempts) {
		s.metrics.RecordVerification("rate_limited")
		return appErrors.Clone(appErrors.ErrRateLimited, "")
	}
	return nil
}

// Consume turns the reservation behind sessionToken into a used voucher.
func (s *VoucherService) Consume(ctx context.Context, voucherID, sessionToken string) error {
	session, err := s.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return err
	}
	if session.VoucherID != voucherID {
		return appErrors.WithDetails(appErrors.ErrSessionExpired, "", []string{string(dto.SessionNotReserved)})
	}
	return s.store.WithinTx(ctx, func(tx repository.VoucherStore) error {
		return s.ConsumeReservation(ctx, tx, session)
	})
}

// ConsumeReservation marks the session's voucher used through store, which is expected
// to be bound to the caller's transaction.
func (s *VoucherService) ConsumeReservation(ctx context.Context, store repository.VoucherStore, session *AdmissionSession) error {
	now := s.now()
	err := store.Consume(ctx, session.VoucherID, session.ReservationID, now, now.Add(-s.ttl()))
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrVoucherNoLongerReserved, "")
	}
	if err != nil {
		return storeError(err, "", "consume voucher")
	}
	return nil
}

// Release frees a reserved voucher. Releasing an unused voucher is a no-op.
func (s *VoucherService) Release(ctx context.Context, id string) (*models.EVoucher, error) {
	err := s.store.Release(ctx, id, s.now())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storeError(err, "", "release voucher")
	}
	voucher, loadErr := s.store.FindByID(ctx, id)
	if loadErr != nil {
		return nil, storeError(loadErr, "voucher not found", "load voucher")
	}
	if err != nil && voucher.Status != models.VoucherUnused {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("voucher is %s, only reserved vouchers can be released", voucher.Status))
	}
	if err == nil {
		s.logger.Info("voucher released", zap.String("voucher_id", id))
	}
	return s.present(voucher), nil
}

// Revoke withdraws a voucher that has not been used. Revoking twice is a no-op.
func (s *VoucherService) Revoke(ctx context.Context, id string) (*models.EVoucher, error) {
	err := s.store.Revoke(ctx, id, s.now())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storeError(err, "", "revoke voucher")
	}
	voucher, loadErr := s.store.FindByID(ctx, id)
	if loadErr != nil {
		return nil, storeError(loadErr, "voucher not found", "load voucher")
	}
	if err != nil && voucher.Status != models.VoucherRevoked {
		return nil, appErrors.Clone(appErrors.ErrConflict, "used vouchers cannot be revoked")
	}
	if err == nil {
		s.logger.Info("voucher revoked", zap.String("voucher_id", id))
	}
	return voucher, nil
}

// Cleanup persists expiry for overdue vouchers and releases reservations older than
// the TTL. Safe to run concurrently with itself and with Verify.
func (s *VoucherService) Cleanup(ctx context.Context) (*dto.CleanupResult, error) {
	now := s.now()
	expired, err := s.store.ExpireOverdue(ctx, now)
	if err != nil {
		return nil, storeError(err, "", "expire vouchers")
	}
	released, err := s.store.ReleaseStale(ctx, now.Add(-s.ttl()), now)
	if err != nil {
		return nil, storeError(err, "", "release stale reservations")
	}
	s.metrics.RecordCleanup(released, expired)
	if released > 0 || expired > 0 {
		s.logger.Info("voucher cleanup", zap.Int64("released", released), zap.Int64("expired", expired))
	}
	return &dto.CleanupResult{ReleasedCount: released, ExpiredCount: expired}, nil
}

// List returns vouchers with their effective status.
func (s *VoucherService) List(ctx context.Context, filter models.VoucherFilter) ([]models.EVoucher, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 500 {
		filter.PageSize = 50
	}
	now := s.now()
	vouchers, total, err := s.store.List(ctx, filter, now)
	if err != nil {
		return nil, nil, storeError(err, "", "list vouchers")
	}
	for i := range vouchers {
		vouchers[i].Status = vouchers[i].EffectiveStatus(now)
	}
	if vouchers == nil {
		vouchers = []models.EVoucher{}
	}
	return vouchers, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *VoucherService) present(voucher *models.EVoucher) *models.EVoucher {
	voucher.Status = voucher.EffectiveStatus(s.now())
	return voucher
}

func normalizeVoucherNumber(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func randomString(alphabet string, length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate random string: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}
