package scheduler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intentmesh/internal/domain"
	"intentmesh/internal/scheduler"
)

const latencyIntent = `@prefix icm: <http://tio.models.tmforum.org/tio/v3.6.0/IntentCommonModel/> .
@prefix quan: <http://tio.models.tmforum.org/tio/v3.6.0/QuantityOntology/> .
@prefix data5g: <http://5g4data.eu/5g4data#> .
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .

data5g:CO1 a icm:Condition ;
    icm:valuesOfTargetProperty data5g:latency ;
    quan:smaller [ rdf:value "20" ; quan:unit "ms" ] .
`

func TestSyntheticSourceFollowsCondition(t *testing.T) {
	src := scheduler.NewSyntheticSource(42)
	intent := domain.Intent{ID: "I1", Expression: domain.IntentExpression{Value: latencyIntent}}
	for tick := 1; tick <= 20; tick++ {
		m, err := src.Sample(context.Background(), intent, tick)
		require.NoError(t, err)
		assert.Equal(t, "latency", m.Name)
		assert.Equal(t, "ms", m.Unit)
		assert.GreaterOrEqual(t, m.Value, 12.0)
		assert.LessOrEqual(t, m.Value, 21.0)
	}
}

func TestSyntheticSourceFallsBackToAvailability(t *testing.T) {
	src := scheduler.NewSyntheticSource(7)
	for _, expr := range []string{"", "not turtle at all ((", "@prefix x: <http://x/> . x:a x:b x:c ."} {
		m, err := src.Sample(context.Background(), domain.Intent{Expression: domain.IntentExpression{Value: expr}}, 1)
		require.NoError(t, err)
		assert.Equal(t, "availability", m.Name)
		assert.Equal(t, "%", m.Unit)
		assert.GreaterOrEqual(t, m.Value, 97.0)
		assert.LessOrEqual(t, m.Value, 100.0)
	}
}
