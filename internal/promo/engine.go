package promo

import (
	"context"
	"fmt"
	"sync"

	"merocart/internal/model"

	"github.com/rs/zerolog"
)

// engine implements Engine over read-only code sets loaded at start-up.
type engine struct {
	codeSets []CodeSet
	rate     float64
	logger   zerolog.Logger
	// code sets are read-only after initialization, no locking needed
}

// EngineConfig holds configuration for the promo engine.
type EngineConfig struct {
	// FilePaths is the list of code files to load.
	FilePaths []string

	// DiscountRate is the fraction of the subtotal granted for a valid code.
	DiscountRate float64
}

// NewEngine creates a promo engine, loading all code files concurrently at
// initialization time.
func NewEngine(ctx context.Context, cfg *EngineConfig, loader Loader, logger zerolog.Logger) (Engine, error) {
	logger = logger.With().Str("component", "promo-engine").Logger()

	logger.Info().
		Int("file_count", len(cfg.FilePaths)).
		Float64("discount_rate", cfg.DiscountRate).
		Msg("initialising promo engine")

	e := &engine{
		codeSets: make([]CodeSet, 0, len(cfg.FilePaths)),
		rate:     cfg.DiscountRate,
		logger:   logger,
	}

	type loadResult struct {
		index int
		set   CodeSet
		err   error
	}

	results := make([]loadResult, len(cfg.FilePaths))
	var wg sync.WaitGroup

	for i, path := range cfg.FilePaths {
		wg.Add(1)
		go func(index int, path string) {
			defer wg.Done()

			set, err := loader.Load(ctx, path)
			results[index] = loadResult{index: index, set: set, err: err}
		}(i, path)
	}

	wg.Wait()

	for i, result := range results {
		if result.err != nil {
			logger.Error().
				Err(result.err).
				Str("file", cfg.FilePaths[i]).
				Msg("failed to load promo code file")
			return nil, fmt.Errorf("failed to load promo code file %s: %w", cfg.FilePaths[i], result.err)
		}
		e.codeSets = append(e.codeSets, result.set)
	}

	totalCodes := 0
	for _, set := range e.codeSets {
		totalCodes += set.Size()
	}

	logger.Info().
		Int("total_codes", totalCodes).
		Msg("promo engine initialised")

	return e, nil
}

// ComputeDiscount validates the code and returns the discount amount.
// A valid code must be between 8 and 10 characters and appear in at least
// one loaded code set. The discount is a flat fraction of the subtotal,
// never exceeding it.
func (e *engine) ComputeDiscount(ctx context.Context, code string, subtotal float64) (float64, error) {
	if code == "" {
		return 0, nil
	}

	if len(code) < 8 || len(code) > 10 {
		e.logger.Debug().
			Str("promo_code", code).
			Int("length", len(code)).
			Msg("promo code length invalid")
		return 0, model.ErrInvalidPromoLength
	}

	found := false
	for _, set := range e.codeSets {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		if set.Contains(code) {
			found = true
			break
		}
	}

	if !found {
		e.logger.Debug().Str("promo_code", code).Msg("promo code not found")
		return 0, model.ErrInvalidPromoCode
	}

	discount := e.rate * subtotal
	if discount > subtotal {
		discount = subtotal
	}

	e.logger.Debug().
		Str("promo_code", code).
		Float64("discount", discount).
		Msg("promo code applied")

	return discount, nil
}

// Close releases resources held by the engine.
func (e *engine) Close() error {
	e.codeSets = nil

	e.logger.Info().Msg("promo engine closed")

	return nil
}
