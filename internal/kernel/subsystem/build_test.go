package subsystem

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderIsTopological(t *testing.T) {
	b := NewBuilder()
	var built []CapabilityKind

	require.NoError(t, b.Register(Capability{
		Kind: "queue",
		Build: func(deps map[CapabilityKind]interface{}) (interface{}, error) {
			built = append(built, "queue")
			return "queue-facet", nil
		},
	}))
	require.NoError(t, b.Register(Capability{
		Kind:      "router",
		DependsOn: []CapabilityKind{"queue"},
		Build: func(deps map[CapabilityKind]interface{}) (interface{}, error) {
			built = append(built, "router")
			assert.Equal(t, "queue-facet", deps["queue"])
			return "router-facet", nil
		},
	}))

	facets, err := b.Instantiate([]CapabilityKind{"router"})
	require.NoError(t, err)

	v, ok := facets.Get("router")
	require.True(t, ok)
	assert.Equal(t, "router-facet", v)
	assert.Equal(t, []CapabilityKind{"queue", "router"}, built)
}

func TestOrderDetectsCycle(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Register(Capability{Kind: "a", DependsOn: []CapabilityKind{"b"}, Build: noop}))
	require.NoError(t, b.Register(Capability{Kind: "b", DependsOn: []CapabilityKind{"a"}, Build: noop}))

	_, err := b.Order([]CapabilityKind{"a"})
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestOrderDetectsMissingDependency(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Register(Capability{Kind: "a", DependsOn: []CapabilityKind{"ghost"}, Build: noop}))

	_, err := b.Order([]CapabilityKind{"a"})
	assert.ErrorIs(t, err, ErrDependencyMissing)
}

func TestOrderCachesBySortedKindSet(t *testing.T) {
	b := NewBuilder()
	calls := 0
	require.NoError(t, b.Register(Capability{Kind: "a", Build: noop}))
	require.NoError(t, b.Register(Capability{Kind: "b", Build: noop}))

	// Call Order twice with the same kinds in a different argument
	// order. Computed fresh, the second call would visit "b" first and
	// return [b a]; a cache hit returns the stored [a b].
	first, err := b.Order([]CapabilityKind{"a", "b"})
	require.NoError(t, err)
	_ = calls

	second, err := b.Order([]CapabilityKind{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRegisterRejectsDuplicateKind(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Register(Capability{Kind: "a", Build: noop}))
	err := b.Register(Capability{Kind: "a", Build: noop})
	assert.ErrorIs(t, err, ErrDuplicateCapability)
}

func noop(deps map[CapabilityKind]interface{}) (interface{}, error) {
	return fmt.Sprintf("built-with-%d-deps", len(deps)), nil
}
