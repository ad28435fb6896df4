package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordShardFanout(t *testing.T) {
	m := New("test-node-" + t.Name())
	m.RecordShardFanout(2)
	m.RecordShardFanoutFailure(2)

	require.Equal(t, float64(1), testutil.ToFloat64(m.ShardFanoutTotal.WithLabelValues("2")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ShardFanoutFailures.WithLabelValues("2")))
}

func TestRecordMissingKeySetAndCollision(t *testing.T) {
	m := New("test-node-" + t.Name())
	m.RecordMissingKeySet("Z")
	m.RecordKeyCollision("k1")

	require.Equal(t, float64(1), testutil.ToFloat64(m.MissingKeySetTotal.WithLabelValues("Z")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.KeyCollisionTotal.WithLabelValues("k1")))
}

func TestRecordUDFInvocation(t *testing.T) {
	m := New("test-node-" + t.Name())
	m.RecordUDFInvocation(true, 0.01)
	m.RecordUDFInvocation(false, 0.02)

	require.Equal(t, float64(2), testutil.ToFloat64(m.UDFInvocationsTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(m.UDFInvocationFailures))
}
