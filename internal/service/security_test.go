package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

func TestSecurityService_RecordAttempt(t *testing.T) {
	const phone = "+254700000001"
	ctx := context.Background()

	t.Run("wrong pin rule trips first", func(t *testing.T) {
		blocks := &memBlocks{}
		svc := NewSecurityService(blocks, &memAttempts{}, nil, nil)

		for i := 0; i < 2; i++ {
			block, err := svc.RecordAttempt(ctx, AttemptParams{PhoneNumber: phone, AttemptType: model.AttemptWrongPin})
			require.NoError(t, err)
			assert.Nil(t, block)
		}
		block, err := svc.RecordAttempt(ctx, AttemptParams{PhoneNumber: phone, AttemptType: model.AttemptWrongPin})
		require.NoError(t, err)
		require.NotNil(t, block)
		assert.Equal(t, "Too many failed PIN attempts", block.Reason)
		assert.Equal(t, model.BlockedByRule, block.BlockedBy)
	})

	t.Run("any type rule", func(t *testing.T) {
		svc := NewSecurityService(&memBlocks{}, &memAttempts{}, nil, nil)

		var block *model.BlockRecord
		for i := 0; i < 10; i++ {
			var err error
			block, err = svc.RecordAttempt(ctx, AttemptParams{PhoneNumber: phone, AttemptType: model.AttemptInvalidInput})
			require.NoError(t, err)
			if i < 9 {
				assert.Nil(t, block)
			}
		}
		require.NotNil(t, block)
		assert.Equal(t, "Suspicious activity detected", block.Reason)
		assert.WithinDuration(t, time.Now().Add(time.Hour), *block.UnblockAt, time.Minute)
	})

	t.Run("old attempts fall out of the window", func(t *testing.T) {
		svc := NewSecurityService(&memBlocks{}, &memAttempts{}, nil, nil)
		now := time.Now()
		svc.now = func() time.Time { return now }

		for i := 0; i < 2; i++ {
			_, err := svc.RecordAttempt(ctx, AttemptParams{PhoneNumber: phone, AttemptType: model.AttemptWrongPin})
			require.NoError(t, err)
		}
		now = now.Add(6 * time.Minute)
		block, err := svc.RecordAttempt(ctx, AttemptParams{PhoneNumber: phone, AttemptType: model.AttemptWrongPin})
		require.NoError(t, err)
		assert.Nil(t, block)
	})

	t.Run("new block replaces active one", func(t *testing.T) {
		blocks := &memBlocks{}
		svc := NewSecurityService(blocks, &memAttempts{}, []BlockRule{
			{Threshold: 1, Window: time.Minute, Reason: "forever"},
		}, nil)

		_, err := svc.RecordAttempt(ctx, AttemptParams{PhoneNumber: phone, AttemptType: model.AttemptInvalidInput})
		require.NoError(t, err)
		block, err := svc.RecordAttempt(ctx, AttemptParams{PhoneNumber: phone, AttemptType: model.AttemptInvalidInput})
		require.NoError(t, err)

		assert.True(t, block.Permanent())
		active := 0
		for _, b := range blocks.blocks {
			if b.IsActive {
				active++
			}
		}
		assert.Equal(t, 1, active)
	})
}

func TestSecurityService_Unblock(t *testing.T) {
	ctx := context.Background()
	blocks := &memBlocks{}
	svc := NewSecurityService(blocks, &memAttempts{}, nil, nil)
	_, err := blocks.Create(ctx, model.CreateBlockParams{PhoneNumber: "+254700000001", Reason: "manual"})
	require.NoError(t, err)

	n, err := svc.Unblock(ctx, "+254700000001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	block, err := svc.CheckBlocked(ctx, "+254700000001")
	require.NoError(t, err)
	assert.Nil(t, block)
}

func TestBlockMessage(t *testing.T) {
	at := time.Date(2026, 1, 2, 14, 5, 0, 0, time.UTC)
	assert.Equal(t,
		"Your number has been temporarily blocked: Too many failed PIN attempts. Try again after 14:05.",
		BlockMessage(&model.BlockRecord{Reason: "Too many failed PIN attempts", UnblockAt: &at}))
	assert.Equal(t,
		"Your number has been blocked: Fraud. Please contact support.",
		BlockMessage(&model.BlockRecord{Reason: "Fraud"}))
}
