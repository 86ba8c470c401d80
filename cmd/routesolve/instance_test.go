package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrdm/gokanroute/pkg/routing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadInstance(t *testing.T) {
	inst, err := LoadInstance(filepath.Join("testdata", "square.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "square", inst.Name)
	assert.Equal(t, 4, inst.Nodes())
	assert.Equal(t, 1, inst.Vehicles)
	assert.Equal(t, [][2]int64{{1, 2}}, inst.Pairs)

	cost := inst.cost()
	assert.Equal(t, int64(707), cost(0, 1))
	assert.Equal(t, int64(500), cost(1, 2))
}

func TestLoadInstanceDefaults(t *testing.T) {
	path := writeFile(t, "tiny.yaml", "matrix: [[0, 1], [1, 0]]\n")
	inst, err := LoadInstance(path)
	require.NoError(t, err)
	assert.Equal(t, "tiny", inst.Name)
	assert.Equal(t, 1, inst.Vehicles)
	assert.Equal(t, float64(1), inst.Scale)
	assert.Equal(t, int64(1), inst.cost()(1, 0))
}

func TestLoadInstanceErrors(t *testing.T) {
	_, err := LoadInstance(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadInstance(writeFile(t, "bad.yaml", "matrix: [[0]]\ncolour: red\n"))
	require.Error(t, err)

	_, err = LoadInstance(writeFile(t, "empty.yaml", "vehicles: 2\nlocations: []\n"))
	require.ErrorIs(t, err, errInvalidInstance)
}

func TestInstanceValidate(t *testing.T) {
	square := [][2]float64{{0, 0}, {1, 1}, {2, 2}}
	tests := []struct {
		name string
		inst Instance
		ok   bool
	}{
		{"locations", Instance{Vehicles: 1, Scale: 1, Locations: square}, true},
		{"no nodes", Instance{Vehicles: 1, Scale: 1}, false},
		{"no vehicles", Instance{Scale: 1, Locations: square}, false},
		{"zero scale", Instance{Vehicles: 1, Locations: square}, false},
		{"ragged matrix", Instance{Vehicles: 1, Scale: 1, Matrix: [][]int64{{0, 1}, {1}}}, false},
		{"locations and matrix differ", Instance{Vehicles: 1, Scale: 1, Locations: square, Matrix: [][]int64{{0, 1}, {1, 0}}}, false},
		{"start_ends count", Instance{Vehicles: 2, Scale: 1, Locations: square, StartEnds: []StartEnd{{0, 1}}}, false},
		{"demands count", Instance{Vehicles: 1, Scale: 1, Locations: square, Demands: []int64{1}, Capacity: 3}, false},
		{"demands without capacity", Instance{Vehicles: 1, Scale: 1, Locations: square, Demands: []int64{0, 1, 1}}, false},
		{"demands", Instance{Vehicles: 1, Scale: 1, Locations: square, Demands: []int64{0, 1, 1}, Capacity: 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.inst.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errInvalidInstance)
			}
		})
	}
}

func TestInstanceBuild(t *testing.T) {
	inst, err := LoadInstance(filepath.Join("testdata", "cvrp.yaml"))
	require.NoError(t, err)
	m, err := inst.Build(routing.DefaultParameters())
	require.NoError(t, err)
	assert.Equal(t, 5, m.Nodes())
	assert.Equal(t, 2, m.Vehicles())
	load := m.Dimension("load")
	require.NotNil(t, load)
	assert.Equal(t, int64(4), load.Capacity())

	inst = &Instance{
		Vehicles:  2,
		Scale:     1,
		Matrix:    [][]int64{{0, 1, 1}, {1, 0, 1}, {1, 1, 0}},
		StartEnds: []StartEnd{{Start: 0, End: 1}, {Start: 0, End: 2}},
	}
	m, err = inst.Build(routing.DefaultParameters())
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.IndexToNode(m.End(0)))
	assert.Equal(t, int64(2), m.IndexToNode(m.End(1)))

	inst.Pairs = [][2]int64{{0, 7}}
	_, err = inst.Build(routing.DefaultParameters())
	assert.Error(t, err)
}
