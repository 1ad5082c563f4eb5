package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// PaymentProcessor is the interface to the external payment provider.
// Every call takes an idempotency key derived from (requestID, operation),
// so a retried call never moves money twice.
type PaymentProcessor interface {
	// Authorize places a hold on the payer's payment method and returns
	// an opaque authorization reference.
	Authorize(ctx context.Context, amount float64, payerToken, idempotencyKey string) (string, error)

	// Capture converts a hold into a charge and returns a receipt reference.
	Capture(ctx context.Context, authID, idempotencyKey string) (string, error)

	// Refund reverses a hold or refunds a captured charge.
	Refund(ctx context.Context, ref, idempotencyKey string) error

	// ChargeSeparate places a standalone charge, used for penalty fees.
	ChargeSeparate(ctx context.Context, amount float64, payerToken, idempotencyKey string) (string, error)
}

// IdempotencyKey derives the key for a payment operation on a request.
func IdempotencyKey(requestID, operation string) string {
	return fmt.Sprintf("%s:%s", requestID, operation)
}

// MockProcessor is an in-memory PaymentProcessor for local runs and tests.
// It replays prior results for a seen idempotency key.
type MockProcessor struct {
	mu      sync.Mutex
	results map[string]string
}

// NewMockProcessor creates a new mock payment processor.
func NewMockProcessor() *MockProcessor {
	return &MockProcessor{results: make(map[string]string)}
}

// Authorize simulates placing a hold. Always succeeds.
func (p *MockProcessor) Authorize(ctx context.Context, amount float64, payerToken, idempotencyKey string) (string, error) {
	return p.replayOrNew(idempotencyKey, "auth"), nil
}

// Capture simulates capturing a hold. Always succeeds.
func (p *MockProcessor) Capture(ctx context.Context, authID, idempotencyKey string) (string, error) {
	return p.replayOrNew(idempotencyKey, "rcpt"), nil
}

// Refund simulates a refund. Always succeeds.
func (p *MockProcessor) Refund(ctx context.Context, ref, idempotencyKey string) error {
	p.replayOrNew(idempotencyKey, "rfnd")
	return nil
}

// ChargeSeparate simulates a standalone charge. Always succeeds.
func (p *MockProcessor) ChargeSeparate(ctx context.Context, amount float64, payerToken, idempotencyKey string) (string, error) {
	return p.replayOrNew(idempotencyKey, "chrg"), nil
}

func (p *MockProcessor) replayOrNew(key, prefix string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ref, ok := p.results[key]; ok {
		return ref
	}
	ref := prefix + "-" + uuid.New().String()
	p.results[key] = ref
	return ref
}

// Ensure MockProcessor implements PaymentProcessor.
var _ PaymentProcessor = (*MockProcessor)(nil)
