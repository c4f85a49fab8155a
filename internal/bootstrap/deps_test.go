package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubChecker struct {
	err      error
	deadline bool
}

func (c *stubChecker) CheckConnection(ctx context.Context) error {
	_, c.deadline = ctx.Deadline()
	return c.err
}

func TestCheckBroker_WarnsWhenUnreachable(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	checker := &stubChecker{err: errors.New("dial tcp: connection refused")}

	checkBroker(context.Background(), checker, zap.New(core))

	assert.True(t, checker.deadline)
	entries := logs.FilterMessage("kafka is unreachable at startup").All()
	assert.Len(t, entries, 1)
}

func TestCheckBroker_QuietWhenReachable(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	checkBroker(context.Background(), &stubChecker{}, zap.New(core))

	assert.Zero(t, logs.Len())
}
