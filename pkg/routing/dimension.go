package routing

import (
	"fmt"

	"github.com/gitrdm/gokanroute/pkg/cp"
)

// Dimension is a quantity accumulated along routes, such as load or time.
// For every active index i with successor j:
//
//	cumul[j] == cumul[i] + transit[i]
//	transit[i] == evaluator(node(i), node(j)) + slack[i]
//
// Cumuls lie in [0, capacity] and are 0 at vehicle starts.
type Dimension struct {
	m         *Model
	name      string
	capacity  int64
	slackMax  int64
	evaluator NodeEvaluator
	cumuls    []*cp.IntVar
	transits  []*cp.IntVar
	slacks    []*cp.IntVar
}

// AddDimension registers a dimension. A dimension with the same name is
// returned unchanged, with a warning.
func (m *Model) AddDimension(eval NodeEvaluator, slackMax, capacity int64, name string) (*Dimension, error) {
	if m.closed {
		return nil, ErrModelClosed
	}
	if d, ok := m.dimensionByName[name]; ok {
		m.log.Warn().Str("dimension", name).Msg("dimension already exists")
		return d, nil
	}
	if slackMax < 0 || capacity < 0 {
		return nil, fmt.Errorf("%w: dimension %q: negative slack or capacity", cp.ErrInvalidArgument, name)
	}
	m.ensureDepot()
	d := &Dimension{
		m:         m,
		name:      name,
		capacity:  capacity,
		slackMax:  slackMax,
		evaluator: m.cachedEvaluator(eval),
	}
	d.build()
	m.dimensions = append(m.dimensions, d)
	m.dimensionByName[name] = d
	return d, nil
}

// AddConstantDimension registers a dimension where every arc transits value.
func (m *Model) AddConstantDimension(value, capacity int64, name string) (*Dimension, error) {
	return m.AddDimension(func(int64, int64) int64 { return value }, 0, capacity, name)
}

// AddVectorDimension registers a dimension where leaving node i transits
// values[i].
func (m *Model) AddVectorDimension(values []int64, capacity int64, name string) (*Dimension, error) {
	if len(values) != m.nodes {
		return nil, fmt.Errorf("%w: dimension %q: %d values for %d nodes", cp.ErrInvalidArgument, name, len(values), m.nodes)
	}
	values = append([]int64(nil), values...)
	return m.AddDimension(func(from, _ int64) int64 { return values[from] }, 0, capacity, name)
}

// AddMatrixDimension registers a dimension where i -> j transits
// matrix[i][j].
func (m *Model) AddMatrixDimension(matrix [][]int64, capacity int64, name string) (*Dimension, error) {
	if len(matrix) != m.nodes {
		return nil, fmt.Errorf("%w: dimension %q: %d rows for %d nodes", cp.ErrInvalidArgument, name, len(matrix), m.nodes)
	}
	rows := make([][]int64, len(matrix))
	for i, row := range matrix {
		if len(row) != m.nodes {
			return nil, fmt.Errorf("%w: dimension %q: row %d has %d columns", cp.ErrInvalidArgument, name, i, len(row))
		}
		rows[i] = append([]int64(nil), row...)
	}
	return m.AddDimension(func(from, to int64) int64 { return rows[from][to] }, 0, capacity, name)
}

func (d *Dimension) build() {
	m, s := d.m, d.m.s
	size := m.Size()
	d.cumuls = make([]*cp.IntVar, size+m.vehicles)
	for i := range d.cumuls {
		d.cumuls[i] = s.NewIntVar(0, d.capacity, fmt.Sprintf("%s%d", d.name, i))
	}
	d.transits = make([]*cp.IntVar, size)
	d.slacks = make([]*cp.IntVar, size)
	for i := int64(0); i < int64(size); i++ {
		i := i
		var fixed *cp.IntVar
		if m.params.UseLightPropagation {
			fixed = s.NewIntVar(-d.capacity, d.capacity, fmt.Sprintf("%sFixedTransit%d", d.name, i))
			s.AddConstraint(s.LightElement(fixed, m.nexts[i], func(j int64) int64 { return d.transit(i, j) }))
		} else {
			fixed = s.ElementFunc(func(j int64) int64 { return d.transit(i, j) }, m.nexts[i]).Var()
		}
		transit := fixed
		if d.slackMax == 0 {
			d.slacks[i] = s.IntConst(0)
		} else {
			d.slacks[i] = s.NewIntVar(0, d.slackMax, fmt.Sprintf("%sSlack%d", d.name, i))
			transit = s.SumVar([]*cp.IntVar{d.slacks[i], fixed}, fmt.Sprintf("%sTransit%d", d.name, i))
		}
		if err := transit.SetRange(-d.capacity, d.capacity); err != nil {
			m.log.Error().Err(err).Str("dimension", d.name).Int64("index", i).Msg("transit exceeds capacity")
		}
		d.transits[i] = transit
	}
	s.AddConstraint(s.PathCumul(m.nexts, m.active, d.cumuls, d.transits))
	for _, start := range m.starts {
		m.pin(d.cumuls[start], 0)
	}
}

// transit evaluates the dimension on variable indices.
func (d *Dimension) transit(i, j int64) int64 {
	return d.evaluator(d.m.indexToNode[i], d.m.indexToNode[j])
}

// Name returns the dimension name.
func (d *Dimension) Name() string { return d.name }

// Capacity returns the upper bound of every cumul.
func (d *Dimension) Capacity() int64 { return d.capacity }

// CumulVar returns the cumul variable of index.
func (d *Dimension) CumulVar(index int64) *cp.IntVar { return d.cumuls[index] }

// TransitVar returns the transit variable of index.
func (d *Dimension) TransitVar(index int64) *cp.IntVar { return d.transits[index] }

// SlackVar returns the slack variable of index.
func (d *Dimension) SlackVar(index int64) *cp.IntVar { return d.slacks[index] }

// Cumuls returns every cumul variable, ends included.
func (d *Dimension) Cumuls() []*cp.IntVar { return d.cumuls }

// Dimension returns the dimension called name, or nil.
func (m *Model) Dimension(name string) *Dimension { return m.dimensionByName[name] }

// Dimensions returns the dimensions in registration order.
func (m *Model) Dimensions() []*Dimension { return m.dimensions }
