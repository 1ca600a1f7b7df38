package reservation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/stitchline/stitchline/internal/shared"
)

// PatternStore persists garment patterns.
type PatternStore interface {
	InsertPattern(ctx context.Context, p Pattern) (Pattern, error)
	FindPattern(ctx context.Context, id int64) (Pattern, error)
	ListPatterns(ctx context.Context) ([]Pattern, error)
}

// Service manages the pattern catalogue used to estimate fabric.
type Service struct {
	store  PatternStore
	authz  shared.Authorizer
	logger *slog.Logger
}

// NewService builds Service.
func NewService(store PatternStore, authz shared.Authorizer, logger *slog.Logger) *Service {
	if authz == nil {
		authz = shared.AllowAll{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, authz: authz, logger: logger}
}

// CreatePattern validates and stores a pattern.
func (s *Service) CreatePattern(ctx context.Context, actor shared.Actor, input CreatePatternInput) (Pattern, error) {
	if err := s.authz.Authorize(ctx, actor, shared.PermInventoryManage); err != nil {
		return Pattern{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Pattern{}, shared.Validationf("reservation: pattern name required")
	}
	if !input.BaseMeters.IsPositive() {
		return Pattern{}, shared.Validationf("reservation: base meters must be positive")
	}
	p, err := s.store.InsertPattern(ctx, Pattern{
		Name:              input.Name,
		BaseMeters:        input.BaseMeters,
		SlimAdjustment:    input.SlimAdjustment,
		RegularAdjustment: input.RegularAdjustment,
		LargeAdjustment:   input.LargeAdjustment,
		XLAdjustment:      input.XLAdjustment,
	})
	if err != nil {
		return Pattern{}, err
	}
	s.logger.Info("pattern created", slog.Int64("pattern_id", p.ID), slog.String("name", p.Name))
	return p, nil
}

// Get returns one pattern.
func (s *Service) Get(ctx context.Context, id int64) (Pattern, error) {
	return s.store.FindPattern(ctx, id)
}

// List returns every pattern.
func (s *Service) List(ctx context.Context) ([]Pattern, error) {
	return s.store.ListPatterns(ctx)
}
