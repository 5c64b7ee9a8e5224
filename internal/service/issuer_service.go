package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/engine"
)

// Registration throttle: a wallet gets a small burst per window so a rejected
// registration can be retried, but scripted spam is cut off.
const (
	registerLimit  = 5
	registerWindow = time.Minute
)

// IssuerService fronts issuer registration and KYC administration.
type IssuerService struct {
	engine  *engine.Engine
	issuers domain.IssuerStore
	limiter domain.RateLimiter
	logger  *slog.Logger
}

// NewIssuerService creates an IssuerService. limiter may be nil.
func NewIssuerService(eng *engine.Engine, issuers domain.IssuerStore, limiter domain.RateLimiter, logger *slog.Logger) *IssuerService {
	return &IssuerService{
		engine:  eng,
		issuers: issuers,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "issuer_service")),
	}
}

// Register self-registers the caller as an issuer.
func (s *IssuerService) Register(ctx context.Context, caller common.Address) error {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "register:"+caller.Hex(), registerLimit, registerWindow)
		if err != nil {
			// Rate limiting is advisory; an unreachable limiter must not block
			// registration.
			s.logger.WarnContext(ctx, "rate limiter unavailable",
				slog.String("wallet", caller.Hex()),
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			return fmt.Errorf("issuer_service: register %s: %w", caller.Hex(), domain.ErrRateLimited)
		}
	}
	return s.engine.RegisterIssuer(ctx, caller)
}

// Get returns an issuer record.
func (s *IssuerService) Get(ctx context.Context, wallet common.Address) (domain.Issuer, error) {
	issuer, err := s.engine.GetIssuer(ctx, wallet)
	if err != nil {
		return domain.Issuer{}, fmt.Errorf("issuer_service: get %s: %w", wallet.Hex(), err)
	}
	return issuer, nil
}

// List returns registered issuers.
func (s *IssuerService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Issuer, error) {
	issuers, err := s.issuers.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("issuer_service: list: %w", err)
	}
	return issuers, nil
}

// ApproveKYC grants KYC approval. Admin only.
func (s *IssuerService) ApproveKYC(ctx context.Context, caller, wallet common.Address) error {
	return s.engine.ApproveKYC(ctx, caller, wallet)
}

// RevokeKYC withdraws KYC approval. Admin only.
func (s *IssuerService) RevokeKYC(ctx context.Context, caller, wallet common.Address) error {
	return s.engine.RevokeKYC(ctx, caller, wallet)
}
