package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gitrdm/gokanroute/pkg/routing"
)

// Instance is a routing problem read from a YAML file. Arc costs come from
// Matrix when it is given, otherwise from the Euclidean distance between
// Locations scaled by Scale.
type Instance struct {
	Name      string       `yaml:"name"`
	Vehicles  int          `yaml:"vehicles"`
	Depot     int64        `yaml:"depot"`
	StartEnds []StartEnd   `yaml:"start_ends"`
	Locations [][2]float64 `yaml:"locations"`
	Matrix    [][]int64    `yaml:"matrix"`
	Scale     float64      `yaml:"scale"`
	FixedCost int64        `yaml:"fixed_cost"`

	Demands  []int64 `yaml:"demands"`
	Capacity int64   `yaml:"capacity"`

	Pairs    [][2]int64 `yaml:"pickups_deliveries"`
	Optional []Optional `yaml:"optional"`
	Routes   [][]int64  `yaml:"initial_routes"`
}

// StartEnd is the start and end node of one vehicle.
type StartEnd struct {
	Start int64 `yaml:"start"`
	End   int64 `yaml:"end"`
}

// Optional is a set of nodes of which at most one is visited; Penalty is
// paid when none is.
type Optional struct {
	Nodes   []int64 `yaml:"nodes"`
	Penalty int64   `yaml:"penalty"`
}

var errInvalidInstance = errors.New("invalid instance")

// LoadInstance reads and checks an instance file. The name defaults to the
// file name without extension.
func LoadInstance(path string) (*Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	inst := &Instance{Vehicles: 1, Scale: 1}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(inst); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if inst.Name == "" {
		inst.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := inst.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inst, nil
}

// Nodes returns the number of nodes of the instance.
func (inst *Instance) Nodes() int {
	if len(inst.Matrix) > 0 {
		return len(inst.Matrix)
	}
	return len(inst.Locations)
}

// Validate reports the first inconsistency of the instance.
func (inst *Instance) Validate() error {
	n := inst.Nodes()
	switch {
	case n == 0:
		return fmt.Errorf("%w: no locations or matrix", errInvalidInstance)
	case len(inst.Matrix) > 0 && len(inst.Locations) > 0 && len(inst.Locations) != n:
		return fmt.Errorf("%w: %d locations for a %dx%d matrix", errInvalidInstance, len(inst.Locations), n, n)
	case inst.Vehicles <= 0:
		return fmt.Errorf("%w: %d vehicles", errInvalidInstance, inst.Vehicles)
	case len(inst.StartEnds) > 0 && len(inst.StartEnds) != inst.Vehicles:
		return fmt.Errorf("%w: %d start_ends for %d vehicles", errInvalidInstance, len(inst.StartEnds), inst.Vehicles)
	case len(inst.Demands) > 0 && len(inst.Demands) != n:
		return fmt.Errorf("%w: %d demands for %d nodes", errInvalidInstance, len(inst.Demands), n)
	case len(inst.Demands) > 0 && inst.Capacity <= 0:
		return fmt.Errorf("%w: demands need a positive capacity", errInvalidInstance)
	case inst.Scale <= 0:
		return fmt.Errorf("%w: scale must be positive", errInvalidInstance)
	}
	for i, row := range inst.Matrix {
		if len(row) != n {
			return fmt.Errorf("%w: matrix row %d has %d columns", errInvalidInstance, i, len(row))
		}
	}
	return nil
}

// cost returns the arc cost evaluator of the instance.
func (inst *Instance) cost() routing.NodeEvaluator {
	if len(inst.Matrix) > 0 {
		return func(from, to int64) int64 { return inst.Matrix[from][to] }
	}
	return func(from, to int64) int64 {
		a, b := inst.Locations[from], inst.Locations[to]
		return int64(math.Round(inst.Scale * math.Hypot(a[0]-b[0], a[1]-b[1])))
	}
}

// Build returns the routing model of the instance.
func (inst *Instance) Build(params routing.Parameters) (*routing.Model, error) {
	var (
		m   *routing.Model
		err error
	)
	if len(inst.StartEnds) > 0 {
		startEnds := make([]routing.StartEnd, len(inst.StartEnds))
		for v, se := range inst.StartEnds {
			startEnds[v] = routing.StartEnd{Start: se.Start, End: se.End}
		}
		m, err = routing.NewWithStartEnds(inst.Nodes(), inst.Vehicles, startEnds, params)
	} else {
		m, err = routing.NewWithDepot(inst.Nodes(), inst.Vehicles, inst.Depot, params)
	}
	if err != nil {
		return nil, err
	}
	if err := m.SetCost(inst.cost()); err != nil {
		return nil, err
	}
	if inst.FixedCost > 0 {
		if err := m.SetRouteFixedCost(inst.FixedCost); err != nil {
			return nil, err
		}
	}
	if len(inst.Demands) > 0 {
		if _, err := m.AddVectorDimension(inst.Demands, inst.Capacity, "load"); err != nil {
			return nil, err
		}
	}
	for _, pair := range inst.Pairs {
		if err := m.AddPickupAndDelivery(pair[0], pair[1]); err != nil {
			return nil, err
		}
	}
	for _, o := range inst.Optional {
		if err := m.AddDisjunctionWithPenalty(o.Nodes, o.Penalty); err != nil {
			return nil, err
		}
	}
	return m, nil
}
