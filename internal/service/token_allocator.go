package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"canteen-order-service/internal/models"
	"canteen-order-service/internal/util"

	"github.com/google/uuid"
)

// TokenAllocator assigns the daily sequential pickup token. The sequence
// number comes from an atomic increment-and-fetch on the per-day counter
// row, so concurrent allocations always get distinct numbers. The letter
// prefix is cosmetic grouping only.
type TokenAllocator struct {
	store    TokenStore
	alphabet string
}

// NewTokenAllocator creates a new token allocator
func NewTokenAllocator(store TokenStore, alphabet string) *TokenAllocator {
	if alphabet == "" {
		alphabet = "ABCDE"
	}
	return &TokenAllocator{store: store, alphabet: alphabet}
}

// Next allocates the next token for today. OrderID is filled in by the
// caller before persisting.
func (a *TokenAllocator) Next(ctx context.Context) (*models.OrderToken, error) {
	ctx, span := util.StartSpan(ctx, "TokenAllocator.Next")
	defer span.End()

	now := time.Now().UTC()
	number, err := a.store.NextTokenNumber(ctx, util.StartOfDay(now))
	if err != nil {
		return nil, fmt.Errorf("token allocation failed: %w", err)
	}

	prefix := a.alphabet[rand.Intn(len(a.alphabet))]

	util.TokensAllocatedTotal.Inc()
	return &models.OrderToken{
		ID:          uuid.New().String(),
		Token:       util.FormatToken(prefix, number),
		TokenNumber: number,
		TokenPrefix: string(prefix),
		GeneratedAt: now,
		ExpiresAt:   now.Add(24 * time.Hour),
	}, nil
}
