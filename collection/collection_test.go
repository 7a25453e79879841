package collection

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolver_SingleIgnoresPartition(t *testing.T) {
	r := New(Single)
	require.Equal(t, "widgets", r.CollectionFor("partition_00001", "widgets"))
	require.Equal(t, "widgets", r.CollectionFor("partition_00002", "widgets"))
}

func TestResolver_PerPartitionNamesByPartition(t *testing.T) {
	r := New(PerPartition)
	require.Equal(t, "widgets_partition_00001", r.CollectionFor("partition_00001", "widgets"))
	require.Equal(t, "widgets_partition_00002", r.CollectionFor("partition_00002", "widgets"))
}

func TestResolver_PerPartitionNoBaseUsesPartitionAlone(t *testing.T) {
	r := New(PerPartition)
	require.Equal(t, "partition_00001", r.CollectionFor("partition_00001", ""))
}

func TestResolver_UnknownStrategyFallsBackToSingle(t *testing.T) {
	r := New(Strategy("bogus"))
	require.Equal(t, Single, r.Strategy())
}
