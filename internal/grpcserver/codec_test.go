package grpcserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_TimestampsAreRFC3339(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c := jsonCodec{}

	data, err := c.Marshal(&DecideResponse{AppliedAt: newTimestamp(at)})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"appliedAt":"2026-03-02T09:00:00Z"`)

	var back DecideResponse
	require.NoError(t, c.Unmarshal(data, &back))
	require.NotNil(t, back.AppliedAt)
	assert.True(t, back.AppliedAt.AsTime().Equal(at))
}

func TestCodec_NilTimestampOmitted(t *testing.T) {
	data, err := jsonCodec{}.Marshal(&DecideResponse{})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "appliedAt")

	var card CardProto
	require.NoError(t, jsonCodec{}.Unmarshal([]byte(`{"createdAt":null}`), &card))
	assert.Nil(t, card.CreatedAt)
}
