package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

const sessionAudience = "admission-session"

type sessionVoucherReader interface {
	FindByID(ctx context.Context, id string) (*models.EVoucher, error)
}

// SessionBrokerConfig configures admission session tokens.
type SessionBrokerConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// AdmissionSession is a validated admission session token.
type AdmissionSession struct {
	VoucherID      string
	AcademicYearID string
	ReservationID  string
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

// SessionBroker issues and checks admission session tokens. A token carries the
// reservation id it was issued under, so it stays valid only while the voucher is still
// reserved under that same reservation.
type SessionBroker struct {
	vouchers sessionVoucherReader
	cfg      SessionBrokerConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionBroker constructs a session broker.
func NewSessionBroker(vouchers sessionVoucherReader, cfg SessionBrokerConfig, logger *zap.Logger) *SessionBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "sma-admission-api"
	}
	return &SessionBroker{vouchers: vouchers, cfg: cfg, logger: logger, now: time.Now}
}

// TTL returns the session and reservation lifetime.
func (b *SessionBroker) TTL() time.Duration {
	return b.cfg.TTL
}

// Issue signs a token for a reservation taken at issuedAt.
func (b *SessionBroker) Issue(voucher *models.EVoucher, reservationID string, issuedAt time.Time) (string, time.Time, error) {
	expiresAt := issuedAt.Add(b.cfg.TTL)
	claims := models.AdmissionSessionClaims{
		VoucherID:      voucher.ID,
		AcademicYearID: voucher.AcademicYearID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        reservationID,
			Issuer:    b.cfg.Issuer,
			Subject:   voucher.ID,
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(b.cfg.Secret))
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign admission session")
	}
	return token, expiresAt, nil
}

// Check re-validates a token for the client. Invalid sessions are reported in the
// response rather than as errors; only store failures return an error.
func (b *SessionBroker) Check(ctx context.Context, token string) (*dto.SessionCheckResponse, error) {
	session, reason, err := b.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return &dto.SessionCheckResponse{Valid: false, Reason: reason}, nil
	}
	expiresAt := session.ExpiresAt
	return &dto.SessionCheckResponse{Valid: true, AcademicYearID: session.AcademicYearID, ExpiresAt: &expiresAt}, nil
}

// Validate returns the session behind token or a SessionExpired error.
func (b *SessionBroker) Validate(ctx context.Context, token string) (*AdmissionSession, error) {
	session, reason, err := b.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return nil, appErrors.WithDetails(appErrors.ErrSessionExpired, "", []string{string(reason)})
	}
	return session, nil
}

func (b *SessionBroker) resolve(ctx context.Context, token string) (*AdmissionSession, dto.SessionReason, error) {
	claims, reason := b.parse(token)
	if reason != "" {
		return nil, reason, nil
	}

	voucher, err := b.vouchers.FindByID(ctx, claims.VoucherID)
	if err != nil {
		mapped := storeError(err, "voucher not found", "load voucher")
		if appErrors.HasCode(mapped, appErrors.ErrNotFound.Code) {
			return nil, dto.SessionNotReserved, nil
		}
		return nil, "", mapped
	}
	now := b.now()
	if voucher.EffectiveStatus(now) != models.VoucherReserved ||
		voucher.ReservationID == nil || *voucher.ReservationID != claims.ID ||
		!voucher.ReservationLive(now, b.cfg.TTL) {
		return nil, dto.SessionNotReserved, nil
	}

	return &AdmissionSession{
		VoucherID:      claims.VoucherID,
		AcademicYearID: claims.AcademicYearID,
		ReservationID:  claims.ID,
		IssuedAt:       claims.IssuedAt.Time,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, "", nil
}

func (b *SessionBroker) parse(raw string) (*models.AdmissionSessionClaims, dto.SessionReason) {
	if raw == "" {
		return nil, dto.SessionInvalidToken
	}
	claims := &models.AdmissionSessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(b.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(b.cfg.Issuer),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dto.SessionExpired
		}
		return nil, dto.SessionInvalidToken
	}
	if !token.Valid || claims.ID == "" || claims.VoucherID == "" || claims.IssuedAt == nil {
		return nil, dto.SessionInvalidToken
	}
	return claims, ""
}
