package instrument

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(recipientsSkipped.WithLabelValues("distrusted"))
	RecipientSkipped("distrusted")
	require.Equal(t, before+1, testutil.ToFloat64(recipientsSkipped.WithLabelValues("distrusted")))

	before = testutil.ToFloat64(sessionsBuilt.WithLabelValues("initiator"))
	SessionBuilt("initiator")
	require.Equal(t, before+1, testutil.ToFloat64(sessionsBuilt.WithLabelValues("initiator")))

	before = testutil.ToFloat64(sessionRepairs)
	SessionRepaired()
	require.Equal(t, before+1, testutil.ToFloat64(sessionRepairs))

	before = testutil.ToFloat64(preKeysConsumed)
	PreKeyConsumed()
	require.Equal(t, before+1, testutil.ToFloat64(preKeysConsumed))
}
