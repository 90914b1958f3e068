package correlator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bunkerlink/internal/domain"
	"bunkerlink/internal/protocol/correlator"
	"bunkerlink/internal/testutil/testlog"
)

func newCorrelator(t *testing.T) (*correlator.Correlator, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	return correlator.New(correlator.WithClock(mock), correlator.WithLogger(testlog.New(t))), mock
}

func TestIssueResolveAwait(t *testing.T) {
	c, _ := newCorrelator(t)
	req, err := c.Issue("ping", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ping", req.Method)
	assert.NotNil(t, req.Params)
	assert.Equal(t, 1, c.Pending())

	require.True(t, c.Resolve(req.ID, "pong"))
	assert.Equal(t, 0, c.Pending())

	res, err := c.Await(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, "pong", res)

	_, err = c.Await(context.Background(), req.ID)
	require.ErrorIs(t, err, domain.ErrUnknownRequest)
}

func TestConcurrentRequestsSettleExactlyOnce(t *testing.T) {
	c, _ := newCorrelator(t)
	const n = 64

	ids := make(map[string]struct{}, n)
	reqs := make([]domain.Request, n)
	for i := range reqs {
		req, err := c.Issue("sign_event", []string{"{}"}, time.Minute)
		require.NoError(t, err)
		reqs[i] = req
		ids[req.ID] = struct{}{}
	}
	require.Len(t, ids, n)

	var settled sync.Map
	var wg sync.WaitGroup
	for _, req := range reqs {
		for _, reject := range []bool{false, true} {
			wg.Add(1)
			go func(id string, reject bool) {
				defer wg.Done()
				var ok bool
				if reject {
					ok = c.Reject(id, errors.New("nope"))
				} else {
					ok = c.Resolve(id, "done")
				}
				if ok {
					_, dup := settled.LoadOrStore(id, reject)
					assert.False(t, dup, "settled twice: %s", id)
				}
			}(req.ID, reject)
		}
	}
	wg.Wait()

	for _, req := range reqs {
		v, ok := settled.Load(req.ID)
		require.True(t, ok)
		res, err := c.Await(context.Background(), req.ID)
		if v.(bool) {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
			assert.Equal(t, "done", res)
		}
	}
	assert.Equal(t, 0, c.Pending())
}

func TestTimeoutThenLateResponseIsNoop(t *testing.T) {
	c, mock := newCorrelator(t)
	req, err := c.Issue("get_public_key", nil, 15*time.Second)
	require.NoError(t, err)

	mock.Add(14 * time.Second)
	assert.Equal(t, 1, c.Pending())
	mock.Add(time.Second)

	_, err = c.Await(context.Background(), req.ID)
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.False(t, c.Resolve(req.ID, "late"))
	assert.False(t, c.Reject(req.ID, errors.New("late")))
}

func TestResolveBeforeTimeoutStopsTimer(t *testing.T) {
	c, mock := newCorrelator(t)
	req, err := c.Issue("ping", nil, time.Second)
	require.NoError(t, err)
	require.True(t, c.Resolve(req.ID, "pong"))
	mock.Add(time.Hour)

	res, err := c.Await(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, "pong", res)
}

func TestCancelAllRejectsEveryPending(t *testing.T) {
	c, _ := newCorrelator(t)
	reason := domain.ErrDisconnected

	var reqs []domain.Request
	for range 3 {
		req, err := c.Issue("sign_event", nil, time.Minute)
		require.NoError(t, err)
		reqs = append(reqs, req)
	}

	errs := make(chan error, len(reqs))
	for _, req := range reqs {
		go func(id string) {
			_, err := c.Await(context.Background(), id)
			errs <- err
		}(req.ID)
	}

	assert.Equal(t, 3, c.CancelAll(reason))
	assert.Equal(t, 0, c.Pending())
	for range reqs {
		require.ErrorIs(t, <-errs, reason)
	}
	assert.Equal(t, 0, c.CancelAll(reason))
}

func TestAwaitContextCancel(t *testing.T) {
	c, _ := newCorrelator(t)
	req, err := c.Issue("ping", nil, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Await(ctx, req.ID)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.Resolve(req.ID, "pong"))
}

func TestDefaultTimeout(t *testing.T) {
	c, mock := newCorrelator(t)
	req, err := c.Issue("ping", nil, 0)
	require.NoError(t, err)

	mock.Add(domain.RequestTimeout - time.Millisecond)
	assert.Equal(t, 1, c.Pending())
	mock.Add(time.Millisecond)

	_, err = c.Await(context.Background(), req.ID)
	require.ErrorIs(t, err, domain.ErrTimeout)
}
