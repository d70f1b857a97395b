package usage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LENAX/automation-engine/pkg/core/tool"
)

func TestAccountant_ZeroLimitsNeverExhaust(t *testing.T) {
	a := NewAccountant(Limits{})
	ctx := context.Background()

	a.Record(ctx, "exec-1", "web.fetch", tool.Usage{Tokens: 1 << 20, Credits: 9999})
	assert.False(t, a.Exhausted(ctx, "exec-1"))
}

func TestAccountant_TokenLimit(t *testing.T) {
	a := NewAccountant(Limits{MaxTokens: 100})
	ctx := context.Background()

	a.Record(ctx, "exec-1", "web.fetch", tool.Usage{Tokens: 60})
	assert.False(t, a.Exhausted(ctx, "exec-1"))

	a.Record(ctx, "exec-1", "web.fetch", tool.Usage{Tokens: 40})
	assert.True(t, a.Exhausted(ctx, "exec-1"))

	// 计数按Execution隔离
	assert.False(t, a.Exhausted(ctx, "exec-2"))
}

func TestAccountant_CreditLimit(t *testing.T) {
	a := NewAccountant(Limits{MaxCredits: 1.5})
	ctx := context.Background()

	a.Record(ctx, "exec-1", "mail.send", tool.Usage{Credits: 1})
	assert.False(t, a.Exhausted(ctx, "exec-1"))

	a.Record(ctx, "exec-1", "mail.send", tool.Usage{Credits: 1})
	assert.True(t, a.Exhausted(ctx, "exec-1"))
}
