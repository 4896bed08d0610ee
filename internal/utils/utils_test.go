package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGracefulShutdown_RunsHooksInReverse(t *testing.T) {
	g := NewGracefulShutdown(time.Second, Nop())

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		g.Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, g.Shutdown(context.Background()))
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestGracefulShutdown_JoinsErrors(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	g := NewGracefulShutdown(time.Second, FromZap(zap.New(core), "shutdown"))

	boom := errors.New("boom")
	g.Register("ok", func(context.Context) error { return nil })
	g.Register("bad", func(context.Context) error { return boom })

	err := g.Shutdown(context.Background())
	assert.ErrorIs(t, err, boom)
	require.Equal(t, 1, logs.FilterMessage("Shutdown hook failed").Len())
	assert.Equal(t, "bad", logs.All()[0].ContextMap()["hook"])
}

func TestGracefulShutdown_Timeout(t *testing.T) {
	g := NewGracefulShutdown(20*time.Millisecond, Nop())
	release := make(chan struct{})
	defer close(release)

	g.Register("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	assert.ErrorIs(t, g.Shutdown(context.Background()), ErrShutdownTimeout)
}

func TestCodedError(t *testing.T) {
	cause := errors.New("address in use")
	err := WrapError(WrapCoded(cause, ErrCodeBindFailed, "bind :8888"), "start")

	assert.Equal(t, ErrCodeBindFailed, CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, NewCodedError(ErrCodeBindFailed, "any"))
	assert.NotErrorIs(t, err, NewCodedError(ErrCodeQueueFull, "any"))
	assert.Equal(t, "", CodeOf(cause))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel(" Debug "))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}
