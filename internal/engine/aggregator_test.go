package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_Empty(t *testing.T) {
	agg := NewAggregator()

	assert.NoError(t, agg.Err())
	assert.Equal(t, 0, agg.Total())
	assert.Empty(t, agg.Distinct())
}

func TestAggregator_DeduplicatesByMessage(t *testing.T) {
	agg := NewAggregator()
	agg.Add(errors.New("connection refused"))
	agg.Add(errors.New("insufficient funds"))
	agg.Add(errors.New("connection refused"))
	agg.Add(errors.New("connection refused"))

	assert.Equal(t, 4, agg.Total())
	assert.Equal(t, []string{"connection refused", "insufficient funds"}, agg.Distinct())
}

func TestAggregator_NilErrorIgnored(t *testing.T) {
	agg := NewAggregator()
	agg.Add(nil)

	assert.Equal(t, 0, agg.Total())
	assert.NoError(t, agg.Err())
}

func TestAggregator_CompositeError(t *testing.T) {
	agg := NewAggregator()
	agg.Add(errors.New("connection refused"))
	agg.Add(errors.New("connection refused"))
	agg.Add(errors.New("timeout"))

	err := agg.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 submission failure(s), 2 distinct")
	assert.Contains(t, err.Error(), "=> connection refused")
	assert.Contains(t, err.Error(), "=> timeout")
}
