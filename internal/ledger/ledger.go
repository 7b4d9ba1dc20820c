// Package ledger defines the contract with the external append-only ledger.
//
// The ledger is the trust anchor: write-once per digest, no update or delete
// by any party, this system included. The protocol logic in internal/anchor
// is written against the Ledger interface so it can be exercised against the
// in-memory fake, which enforces the same uniqueness contract as the real
// gateway.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	id "iris/pkg/domain"
)

// ErrZeroDigest is returned when a submission carries the all-zero word.
// The ledger contract rejects it outright; callers should have caught it
// earlier during digest parsing.
var ErrZeroDigest = errors.New("zero digest rejected by ledger")

// Record is the ledger's view of one anchored digest.
type Record struct {
	Digest        id.Digest
	Ref           string
	Submitter     string
	Timestamp     time.Time
	Confirmations int
}

// Ledger is the minimal external contract.
//
// Submit writes the digest as a single atomic transaction and returns its
// reference. It fails with ErrZeroDigest for the zero word and with
// sentinel.ErrDuplicateKey when the digest is already present — the ledger
// enforces single-write-per-key, which is the backstop against races between
// two submitters of the same digest.
//
// Query and QueryByRef return sentinel.ErrNotFound when no record exists and
// sentinel.ErrUnavailable (wrapped) on transport failure.
//
//go:generate mockgen -source=ledger.go -destination=mocks/mocks.go -package=mocks Ledger
type Ledger interface {
	Submit(ctx context.Context, digest id.Digest) (string, error)
	Query(ctx context.Context, digest id.Digest) (Record, error)
	QueryByRef(ctx context.Context, ref string) (Record, error)
}

// AwaitConfirmed polls until the referenced transaction reaches the required
// confirmation depth. It is the dominant latency source of the anchor
// protocol and is bounded solely by the caller's context: cancellation here
// never retracts the submitted transaction, it only stops waiting.
func AwaitConfirmed(ctx context.Context, l Ledger, ref string, depth int) (Record, error) {
	interval := 250 * time.Millisecond
	const maxInterval = 2 * time.Second

	for {
		record, err := l.QueryByRef(ctx, ref)
		if err == nil && record.Confirmations >= depth {
			return record, nil
		}
		// Transient lookup failures and not-yet-indexed refs both fall
		// through to the next poll; the context deadline is the arbiter.
		select {
		case <-ctx.Done():
			return Record{}, fmt.Errorf("await confirmation of %s: %w", ref, ctx.Err())
		case <-time.After(interval):
		}
		if interval < maxInterval {
			interval *= 2
		}
	}
}
