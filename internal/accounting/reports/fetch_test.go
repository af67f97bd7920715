package reports

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchSharedBuildSurvivesFirstCallerCancel(t *testing.T) {
	svc := NewService(nil, nil, nil, Config{})

	var (
		calls   atomic.Int32
		once    sync.Once
		started = make(chan struct{})
		release = make(chan struct{})
	)
	build := func(ctx context.Context) (any, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return map[string]int{"rows": 3}, nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		var out map[string]int
		firstErr <- svc.fetch(firstCtx, "tb:2024:1", &out, build)
	}()
	<-started

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	secondErr := make(chan error, 1)
	var second map[string]int
	go func() {
		secondErr <- svc.fetch(context.Background(), "tb:2024:1", &second, build)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-secondErr)
	require.Equal(t, 3, second["rows"])
	require.LessOrEqual(t, calls.Load(), int32(2))
}
