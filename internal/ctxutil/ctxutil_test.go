package ctxutil_test

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/Knowmad79/Docbox2026/internal/auth"
	"github.com/Knowmad79/Docbox2026/internal/ctxutil"
)

func TestClaimsRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, ctxutil.ClaimsFromContext(ctx))
	assert.Equal(t, uuid.Nil, ctxutil.UserIDFromContext(ctx))

	id := uuid.New()
	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id.String()}, Email: "a@b.test"}
	ctx = ctxutil.WithClaims(ctx, claims)
	assert.Same(t, claims, ctxutil.ClaimsFromContext(ctx))
	assert.Equal(t, id, ctxutil.UserIDFromContext(ctx))
}

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ctxutil.RequestIDFromContext(ctx))
	assert.Equal(t, "req-1", ctxutil.RequestIDFromContext(ctxutil.WithRequestID(ctx, "req-1")))
}
