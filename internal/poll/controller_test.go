package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtl[T any](t *testing.T, c *Controller[T]) Result[T] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := c.Wait(ctx)
	require.NoError(t, err)
	return r
}

func TestController_HappyPath(t *testing.T) {
	initiate := func(context.Context) (string, error) { return "job-7", nil }
	check := func(_ context.Context, id string) (Status[payload], error) {
		return Status[payload]{Phase: PhaseSuccess, Data: &payload{Name: id}}, nil
	}

	c := NewController(initiate, check, fast()...)
	assert.Equal(t, StateIdle, c.State())

	resolved := make(chan Result[payload], 1)
	c.OnResolve(func(r Result[payload]) { resolved <- r })

	require.NoError(t, c.Start(context.Background()))
	r := waitCtl(t, c)
	require.NoError(t, r.Err)
	assert.Equal(t, "job-7", r.Value.Name)
	assert.Equal(t, StateSuccess, c.State())
	assert.Equal(t, "job-7", c.JobID())

	select {
	case got := <-resolved:
		assert.Equal(t, r, got)
	case <-time.After(time.Second):
		t.Fatal("OnResolve not called")
	}
}

func TestController_InitiateFailure(t *testing.T) {
	var checked atomic.Bool
	initiate := func(context.Context) (string, error) { return "", errors.New("companyName is required") }
	check := func(context.Context, string) (Status[payload], error) {
		checked.Store(true)
		return Status[payload]{}, nil
	}

	c := NewController(initiate, check, fast()...)
	require.NoError(t, c.Start(context.Background()))
	r := waitCtl(t, c)
	assert.EqualError(t, r.Err, "companyName is required")
	assert.Equal(t, StateError, c.State())
	assert.False(t, checked.Load())
}

func TestController_StartTwice(t *testing.T) {
	initiate := func(context.Context) (string, error) { return "job", nil }
	check := func(context.Context, string) (Status[payload], error) {
		return Status[payload]{Phase: PhasePending}, nil
	}
	c := NewController(initiate, check, WithInterval(time.Hour))
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
	c.Stop()
}

func TestController_StopSuppressesCallback(t *testing.T) {
	initiate := func(context.Context) (string, error) { return "job", nil }
	check := func(context.Context, string) (Status[payload], error) {
		return Status[payload]{Phase: PhasePending}, nil
	}

	var called atomic.Bool
	c := NewController(initiate, check, WithInterval(5*time.Millisecond), WithMaxAttempts(1000))
	c.OnResolve(func(Result[payload]) { called.Store(true) })
	require.NoError(t, c.Start(context.Background()))

	time.Sleep(20 * time.Millisecond)
	c.Stop()

	r := waitCtl(t, c)
	assert.Error(t, r.Err)
	assert.Equal(t, StateError, c.State())
	time.Sleep(20 * time.Millisecond)
	assert.False(t, called.Load())
}

func TestController_StopWhileIdle(t *testing.T) {
	c := NewController(
		func(context.Context) (string, error) { return "job", nil },
		func(context.Context, string) (Status[payload], error) { return Status[payload]{}, nil },
	)
	c.Stop()

	r := waitCtl(t, c)
	assert.ErrorIs(t, r.Err, ErrCancelled)
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
}
