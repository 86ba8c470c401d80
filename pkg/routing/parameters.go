package routing

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FirstSolutionStrategy selects how the first solution is built.
type FirstSolutionStrategy int

const (
	// DefaultStrategy binds successors in variable order with their
	// smallest value.
	DefaultStrategy FirstSolutionStrategy = iota
	// GlobalCheapestArc repeatedly binds the cheapest arc of the whole
	// model.
	GlobalCheapestArc
	// LocalCheapestArc binds the first unbound successor to its cheapest
	// value.
	LocalCheapestArc
	// PathCheapestArc extends the current path with its cheapest arc.
	PathCheapestArc
	// EvaluatorStrategy extends paths with the arc preferred by the
	// evaluator set with SetFirstSolutionEvaluator.
	EvaluatorStrategy
	// AllUnperformed makes every optional node inactive.
	AllUnperformed
	// BestInsertion starts from AllUnperformed and inserts nodes with a
	// greedy local search.
	BestInsertion
)

var firstSolutionNames = [...]string{
	"DefaultStrategy",
	"GlobalCheapestArc",
	"LocalCheapestArc",
	"PathCheapestArc",
	"EvaluatorStrategy",
	"AllUnperformed",
	"BestInsertion",
}

func (f FirstSolutionStrategy) String() string {
	if f < 0 || int(f) >= len(firstSolutionNames) {
		return fmt.Sprintf("FirstSolutionStrategy(%d)", int(f))
	}
	return firstSolutionNames[f]
}

// ParseFirstSolutionStrategy returns the strategy called name. Names are
// matched case-insensitively.
func ParseFirstSolutionStrategy(name string) (FirstSolutionStrategy, error) {
	for i, n := range firstSolutionNames {
		if strings.EqualFold(n, name) {
			return FirstSolutionStrategy(i), nil
		}
	}
	return DefaultStrategy, fmt.Errorf("%w: unknown first solution strategy %q", ErrInvalidParameters, name)
}

// Set implements pflag.Value.
func (f *FirstSolutionStrategy) Set(name string) error {
	v, err := ParseFirstSolutionStrategy(name)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Type implements pflag.Value.
func (f *FirstSolutionStrategy) Type() string { return "strategy" }

func (f FirstSolutionStrategy) MarshalYAML() (any, error) { return f.String(), nil }

func (f *FirstSolutionStrategy) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	return f.Set(name)
}

// Metaheuristic selects how the local search escapes local optima.
type Metaheuristic int

const (
	// GreedyDescent stops at the first local optimum.
	GreedyDescent Metaheuristic = iota
	// GuidedLocalSearch penalizes the arcs of local optima.
	GuidedLocalSearch
	// SimulatedAnnealing accepts degrading neighbors with a decreasing
	// probability.
	SimulatedAnnealing
	// TabuSearch forbids undoing recent moves.
	TabuSearch
)

var metaheuristicNames = [...]string{
	"GreedyDescent",
	"GuidedLocalSearch",
	"SimulatedAnnealing",
	"TabuSearch",
}

func (m Metaheuristic) String() string {
	if m < 0 || int(m) >= len(metaheuristicNames) {
		return fmt.Sprintf("Metaheuristic(%d)", int(m))
	}
	return metaheuristicNames[m]
}

// ParseMetaheuristic returns the metaheuristic called name. Names are
// matched case-insensitively.
func ParseMetaheuristic(name string) (Metaheuristic, error) {
	for i, n := range metaheuristicNames {
		if strings.EqualFold(n, name) {
			return Metaheuristic(i), nil
		}
	}
	return GreedyDescent, fmt.Errorf("%w: unknown metaheuristic %q", ErrInvalidParameters, name)
}

// Set implements pflag.Value.
func (m *Metaheuristic) Set(name string) error {
	v, err := ParseMetaheuristic(name)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Type implements pflag.Value.
func (m *Metaheuristic) Type() string { return "metaheuristic" }

func (m Metaheuristic) MarshalYAML() (any, error) { return m.String(), nil }

func (m *Metaheuristic) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	return m.Set(name)
}

// escapes reports whether the search never stops on its own.
func (m Metaheuristic) escapes() bool { return m != GreedyDescent }

// Status is the outcome of the last solve.
type Status int

const (
	StatusNotSolved Status = iota
	StatusSuccess
	StatusFail
	StatusFailTimeout
)

func (s Status) String() string {
	switch s {
	case StatusNotSolved:
		return "NotSolved"
	case StatusSuccess:
		return "Success"
	case StatusFail:
		return "Fail"
	case StatusFailTimeout:
		return "FailTimeout"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Metaheuristic settings that are not exposed as parameters.
const (
	annealingTemperature = 100
	tabuKeepTenure       = 10
	tabuForbidTenure     = 10
	tabuFactor           = 0.8
	searchLogPeriod      = 10000
)

// Parameters configure model construction and search. The zero value is not
// usable; start from DefaultParameters.
type Parameters struct {
	// Neighborhoods
	NoLNS                 bool `yaml:"no_lns"`
	NoRelocate            bool `yaml:"no_relocate"`
	NoExchange            bool `yaml:"no_exchange"`
	NoCross               bool `yaml:"no_cross"`
	NoTwoOpt              bool `yaml:"no_2opt"`
	NoOrOpt               bool `yaml:"no_oropt"`
	NoMakeActive          bool `yaml:"no_make_active"`
	NoLKH                 bool `yaml:"no_lkh"`
	NoTSP                 bool `yaml:"no_tsp"`
	NoTSPLNS              bool `yaml:"no_tsplns"`
	UseExtendedSwapActive bool `yaml:"use_extended_swap_active"`

	// Limits. Zero means no limit.
	SolutionLimit int64         `yaml:"solution_limit"`
	TimeLimit     time.Duration `yaml:"time_limit"`
	LNSTimeLimit  time.Duration `yaml:"lns_time_limit"`

	// Search
	FirstSolution           FirstSolutionStrategy `yaml:"first_solution"`
	UseFirstSolutionDive    bool                  `yaml:"use_first_solution_dive"`
	Metaheuristic           Metaheuristic         `yaml:"metaheuristic"`
	GuidedLocalSearchLambda float64               `yaml:"guided_local_search_lambda"`
	DFS                     bool                  `yaml:"dfs"`
	OptimizationStep        int64                 `yaml:"optimization_step"`

	// Filters
	UseObjectiveFilter      bool `yaml:"use_objective_filter"`
	UsePathCumulFilter      bool `yaml:"use_path_cumul_filter"`
	UsePickupDeliveryFilter bool `yaml:"use_pickup_delivery_filter"`

	// Model
	UseLightPropagation    bool `yaml:"use_light_propagation"`
	CacheCallbacks         bool `yaml:"cache_callbacks"`
	MaxCacheSize           int  `yaml:"max_cache_size"`
	UseHomogeneousCosts    bool `yaml:"use_homogeneous_costs"`
	CheckCompactAssignment bool `yaml:"check_compact_assignment"`

	Trace bool  `yaml:"trace"`
	Seed  int64 `yaml:"seed"`
}

// DefaultParameters returns the default configuration.
func DefaultParameters() Parameters {
	return Parameters{
		NoTSP:                   true,
		NoTSPLNS:                true,
		LNSTimeLimit:            100 * time.Millisecond,
		GuidedLocalSearchLambda: 0.1,
		OptimizationStep:        1,
		UseObjectiveFilter:      true,
		UsePathCumulFilter:      true,
		UsePickupDeliveryFilter: true,
		MaxCacheSize:            1000,
		UseHomogeneousCosts:     true,
		CheckCompactAssignment:  true,
		Seed:                    1,
	}
}

// LoadParameters reads a YAML parameter file on top of DefaultParameters.
// Unknown keys are rejected.
func LoadParameters(path string) (Parameters, error) {
	p := DefaultParameters()
	f, err := os.Open(path)
	if err != nil {
		return p, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, fmt.Errorf("decode %s: %w", path, err)
	}
	return p, p.Validate()
}

// Validate checks that the parameters describe a search that can run and
// terminate.
func (p Parameters) Validate() error {
	var problems []string
	if p.OptimizationStep <= 0 {
		problems = append(problems, "optimization_step must be positive")
	}
	if p.SolutionLimit < 0 || p.TimeLimit < 0 || p.LNSTimeLimit < 0 {
		problems = append(problems, "limits must not be negative")
	}
	if p.GuidedLocalSearchLambda < 0 {
		problems = append(problems, "guided_local_search_lambda must not be negative")
	}
	if p.MaxCacheSize < 0 {
		problems = append(problems, "max_cache_size must not be negative")
	}
	if p.FirstSolution < 0 || int(p.FirstSolution) >= len(firstSolutionNames) {
		problems = append(problems, fmt.Sprintf("unknown first solution strategy %d", int(p.FirstSolution)))
	}
	if p.Metaheuristic < 0 || int(p.Metaheuristic) >= len(metaheuristicNames) {
		problems = append(problems, fmt.Sprintf("unknown metaheuristic %d", int(p.Metaheuristic)))
	} else if p.Metaheuristic.escapes() && !p.DFS && p.TimeLimit == 0 && p.SolutionLimit == 0 {
		problems = append(problems, fmt.Sprintf("%s needs time_limit or solution_limit", p.Metaheuristic))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParameters, strings.Join(problems, "; "))
	}
	return nil
}
