package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

func testProcess(buf *bytes.Buffer) (*Process, *int) {
	code := -1
	return &Process{
		Name:   "test",
		Logger: logger.New(logger.Options{ServiceName: "test", Output: buf}),
		exit:   func(c int) { code = c },
	}, &code
}

func TestCloseRunsNewestFirstAndCollectsErrors(t *testing.T) {
	var buf bytes.Buffer
	p, _ := testProcess(&buf)

	var order []string
	p.OnClose("database", func() error { order = append(order, "database"); return nil })
	p.OnClose("redis", func() error { order = append(order, "redis"); return errors.New("conn reset") })
	p.OnClose("pubsub client", func() error { order = append(order, "pubsub"); return errors.New("grpc closing") })

	err := p.Close()
	require.Equal(t, []string{"pubsub", "redis", "database"}, order)
	require.ErrorContains(t, err, "conn reset")
	require.ErrorContains(t, err, "grpc closing")
	require.Contains(t, buf.String(), "error closing redis")

	require.NoError(t, p.Close(), "closers run once")
}

func TestCheckExitsAfterClosing(t *testing.T) {
	var buf bytes.Buffer
	p, code := testProcess(&buf)
	closed := false
	p.OnClose("database", func() error { closed = true; return nil })

	p.Check(nil, "create wallet service")
	require.Equal(t, -1, *code)
	require.False(t, closed)

	p.Check(errors.New("boom"), "create wallet service")
	require.Equal(t, 1, *code)
	require.True(t, closed)
	require.Contains(t, buf.String(), "failed to create wallet service")
}

func TestFinishTreatsCancellationAsClean(t *testing.T) {
	var buf bytes.Buffer
	p, code := testProcess(&buf)

	p.Finish(context.Background(), context.Canceled)
	require.Equal(t, -1, *code)
	require.Contains(t, buf.String(), "test shutting down gracefully")

	p.Finish(context.Background(), errors.New("subscription deleted"))
	require.Equal(t, 1, *code)
	require.Contains(t, buf.String(), "test stopped unexpectedly")
}
