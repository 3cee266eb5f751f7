package requestcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"jornada/pkg/domain"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.True(t, ActorID(ctx).IsNil())
	assert.Empty(t, ClientIP(ctx))

	actor := domain.NewUserID()
	ctx = WithRequestID(ctx, "req-42")
	ctx = WithActorID(ctx, actor)
	ctx = WithClientIP(ctx, "10.0.0.7")

	assert.Equal(t, "req-42", RequestID(ctx))
	assert.Equal(t, actor, ActorID(ctx))
	assert.Equal(t, "10.0.0.7", ClientIP(ctx))
}
