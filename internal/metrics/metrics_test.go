package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"

	"github.com/utafrali/gomarketplace/internal/domain"
)

func TestMutation(t *testing.T) {
	m := New(prometheus.NewRegistry())
	c := domain.NewCart([]domain.LineItem{{ID: "a", Quantity: 2}, {ID: "b", Quantity: 3}})

	m.Mutation("add", c)
	m.Mutation("add", c)
	m.Mutation("decrement", c)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.mutations.WithLabelValues("add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("decrement")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lines))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.units))
}

func TestPersisted(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Persisted("increment", errors.New("down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistFailures.WithLabelValues("increment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dirty))

	m.Persisted("increment", nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.dirty))
}

func TestLoaded(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Loaded(domain.NewCart([]domain.LineItem{{ID: "a", Quantity: 4}}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.lines))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.units))
}

func TestSetBreakerState(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetBreakerState("storage", gobreaker.StateOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.breakerState.WithLabelValues("storage")))

	m.SetBreakerState("storage", gobreaker.StateHalfOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("storage")))
}

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Mutation("add", domain.Cart{})
	m.SetBreakerState("storage", gobreaker.StateClosed)

	n, err := testutil.GatherAndCount(reg, "cart_mutations_total", "circuit_breaker_state")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}
