package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 12

// MaxSecretBytes is the longest secret bcrypt will accept.
const MaxSecretBytes = 72

// ErrHashing is returned when a hash could not be produced at all.
var ErrHashing = errors.New("hashing failed")

// Hasher produces and checks bcrypt hashes. At most workers computations run
// at the same time, extra callers wait for a slot.
type Hasher struct {
	cost  int
	sem   *semaphore.Weighted
	dummy []byte
}

// NewHasher clamps cost to the range bcrypt supports; workers <= 0 means NumCPU.
// It computes one throwaway hash up front for VerifyMissing.
func NewHasher(cost, workers int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("messagely-unknown-user"), cost)
	if err != nil {
		panic(fmt.Sprintf("auth: dummy hash at cost %d: %v", cost, err))
	}
	return &Hasher{cost: cost, sem: semaphore.NewWeighted(int64(workers)), dummy: dummy}
}

func (h *Hasher) Cost() int { return h.cost }

// Hash returns a self-describing bcrypt blob ($2a$<cost>$<salt><digest>).
func (h *Hasher) Hash(ctx context.Context, secret string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashing, err)
	}
	defer h.sem.Release(1)

	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashing, err)
	}
	return string(b), nil
}

// Verify reports whether secret matches hash. Malformed hashes and
// cancelled contexts count as a mismatch.
func (h *Hasher) Verify(ctx context.Context, secret, hash string) bool {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// VerifyMissing burns one comparison against a throwaway hash of the current
// cost, so an unknown username takes as long to reject as a wrong secret.
func (h *Hasher) VerifyMissing(ctx context.Context, secret string) {
	_ = h.Verify(ctx, secret, string(h.dummy))
}

// NeedsRehash reports whether hash was produced with a different cost than
// the hasher is configured for.
func (h *Hasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return c != h.cost
}
