package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (p *Pipeline) queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pipeline) inFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshing
}

type tokenSourceFunc func(ctx context.Context) (string, error)

func (f tokenSourceFunc) Token() string { return "T1" }

func (f tokenSourceFunc) RefreshToken(ctx context.Context) (string, error) {
	return f(ctx)
}

func TestSettleDrainsQueueInOrder(t *testing.T) {
	p := NewPipeline("http://localhost", nil, WithPipelineLogger(NopLogger{}))

	var order []int
	p.mu.Lock()
	p.refreshing = true
	for i := range 5 {
		p.queue = append(p.queue, pendingRequest{
			resolve: func(token string) {
				assert.Equal(t, "T2", token)
				order = append(order, i)
			},
			reject: func(err error) {
				t.Errorf("unexpected reject: %v", err)
			},
		})
	}
	p.mu.Unlock()

	p.settle("T2", nil)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.False(t, p.inFlight())
	assert.Equal(t, 0, p.queued())
}

func TestSettleRejectsQueueInOrder(t *testing.T) {
	p := NewPipeline("http://localhost", nil, WithPipelineLogger(NopLogger{}))
	cause := errors.New("refresh failed")

	var order []int
	p.mu.Lock()
	p.refreshing = true
	for i := range 3 {
		p.queue = append(p.queue, pendingRequest{
			resolve: func(string) {
				t.Error("unexpected resolve")
			},
			reject: func(err error) {
				assert.Same(t, cause, err)
				order = append(order, i)
			},
		})
	}
	p.mu.Unlock()

	p.settle("", cause)

	assert.Equal(t, []int{0, 1, 2}, order)
	assert.False(t, p.inFlight())
}

func TestRefreshReleasesFlagOnPanic(t *testing.T) {
	source := tokenSourceFunc(func(context.Context) (string, error) {
		panic("boom")
	})
	p := NewPipeline("http://localhost", source, WithPipelineLogger(NopLogger{}))

	var rejected error
	p.mu.Lock()
	p.refreshing = true
	p.queue = append(p.queue, pendingRequest{
		resolve: func(string) { t.Error("unexpected resolve") },
		reject:  func(err error) { rejected = err },
	})
	p.mu.Unlock()

	require.Panics(t, func() {
		_, _ = p.refresh(context.Background())
	})

	assert.False(t, p.inFlight())
	assert.Equal(t, 0, p.queued())
	assert.ErrorIs(t, rejected, ErrRefreshAborted)
}

func TestRefreshIgnoresCallerCancellation(t *testing.T) {
	source := tokenSourceFunc(func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "T2", nil
	})
	p := NewPipeline("http://localhost", source, WithPipelineLogger(NopLogger{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	token, err := p.refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T2", token)
}
