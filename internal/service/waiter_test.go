package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dyntables/internal/domain"
	"dyntables/internal/service"
)

// lagProber reports the column as not yet visible for the first lag probes.
type lagProber struct {
	lag     int
	err     error
	probes  int
	reloads int
}

func (p *lagProber) Probe(_ context.Context, _, _ string) error {
	p.probes++
	if p.probes <= p.lag {
		return &domain.Error{Kind: domain.ErrSchemaNotYetVisible, Op: "probe"}
	}
	return p.err
}

func (p *lagProber) ReloadSchema(context.Context, string) { p.reloads++ }

func TestWaiter_Wait(t *testing.T) {
	ctx := context.Background()

	t.Run("visible after lag", func(t *testing.T) {
		p := &lagProber{lag: 2}
		v := service.NewWaiter(p, 5, time.Millisecond, nil).Wait(ctx, "dyn_x", "col_a")
		assert.True(t, v.Visible)
		assert.Equal(t, 3, v.Attempts)
		assert.Equal(t, 2, p.reloads, "the schema is reloaded between attempts")
	})

	t.Run("gives up", func(t *testing.T) {
		p := &lagProber{lag: 100}
		v := service.NewWaiter(p, 3, time.Millisecond, nil).Wait(ctx, "dyn_x", "col_a")
		assert.False(t, v.Visible)
		assert.Equal(t, 3, v.Attempts)
		assert.Equal(t, 3, p.probes)
	})

	t.Run("other errors stop early", func(t *testing.T) {
		p := &lagProber{err: errors.New("permission denied")}
		v := service.NewWaiter(p, 5, time.Millisecond, nil).Wait(ctx, "dyn_x", "col_a")
		assert.False(t, v.Visible)
		assert.Equal(t, 1, v.Attempts)
	})
}

func TestWaiter_WaitAllAndPending(t *testing.T) {
	p := &lagProber{lag: 100}
	w := service.NewWaiter(p, 2, time.Millisecond, nil)
	vs := w.WaitAll(context.Background(), "dyn_x", []string{"col_a", "col_b"})
	assert.Len(t, vs, 2)
	assert.Equal(t, []string{"col_a", "col_b"}, service.Pending(vs))

	assert.Empty(t, service.Pending([]service.Visibility{{Column: "col_c", Visible: true}}))
}
