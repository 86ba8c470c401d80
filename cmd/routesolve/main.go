// routesolve solves vehicle routing instances described in YAML files, in
// parallel, and prints one report per instance.
//
// Settings are layered: built-in defaults, then ROUTESOLVE_* variables
// (read from the environment or a .env file), then the parameter file, then
// command-line flags.
//
//	routesolve [flags] instance.yaml...
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/gitrdm/gokanroute/internal/logger"
	"github.com/gitrdm/gokanroute/internal/parallel"
	"github.com/gitrdm/gokanroute/pkg/cp"
	"github.com/gitrdm/gokanroute/pkg/routing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options are the settings that are not routing parameters.
type options struct {
	paramsFile  string
	workers     int
	outDir      string
	compression string
	logLevel    string
	dumpParams  bool
}

// envOptions returns the defaults of options, overridden by ROUTESOLVE_*
// variables.
func envOptions() (options, error) {
	opts := options{
		paramsFile:  os.Getenv("ROUTESOLVE_PARAMS"),
		outDir:      os.Getenv("ROUTESOLVE_OUT"),
		compression: getEnv("ROUTESOLVE_COMPRESSION", "zstd"),
		logLevel:    getEnv("ROUTESOLVE_LOG_LEVEL", "info"),
	}
	if v := os.Getenv("ROUTESOLVE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("ROUTESOLVE_WORKERS: %w", err)
		}
		opts.workers = n
	}
	return opts, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	opts, err := envOptions()
	if err != nil {
		return err
	}

	var flagParams routing.Parameters
	flagSet := pflag.NewFlagSet("routesolve", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.paramsFile, "params", "p", opts.paramsFile, "YAML routing parameter file")
	flagSet.IntVarP(&opts.workers, "workers", "j", opts.workers, "instances solved concurrently (0: one per CPU)")
	flagSet.StringVarP(&opts.outDir, "out", "o", opts.outDir, "directory receiving one solution file per instance")
	flagSet.StringVar(&opts.compression, "compression", opts.compression, "solution file compression: none, lz4 or zstd")
	flagSet.StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level: debug, info, warn or error")
	flagSet.BoolVar(&opts.dumpParams, "dump-params", false, "print the effective parameters and exit")
	flagSet.DurationVar(&flagParams.TimeLimit, "time-limit", 0, "search time limit per instance")
	flagSet.Int64Var(&flagParams.SolutionLimit, "solution-limit", 0, "solution limit per instance")
	flagSet.Var(&flagParams.FirstSolution, "first-solution", "first solution strategy")
	flagSet.Var(&flagParams.Metaheuristic, "metaheuristic", "local search metaheuristic")
	flagSet.BoolVar(&flagParams.DFS, "dfs", false, "complete depth-first search instead of local search")
	flagSet.BoolVar(&flagParams.Trace, "trace", false, "log search progress")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	log := logger.Component("routesolve")

	params := routing.DefaultParameters()
	if opts.paramsFile != "" {
		if params, err = routing.LoadParameters(opts.paramsFile); err != nil {
			return err
		}
	}
	overrideParameters(&params, flagParams, flagSet.Changed)
	if opts.dumpParams {
		return yaml.NewEncoder(stdout).Encode(params)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	compression, err := routing.ParseCompression(opts.compression)
	if err != nil {
		return err
	}
	paths := flagSet.Args()
	if len(paths) == 0 {
		return errors.New("no instance file given")
	}
	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return err
		}
	}

	pool := parallel.NewWorkerPool(opts.workers)
	defer pool.Shutdown()
	log.Info().Int("instances", len(paths)).Int("workers", pool.Size()).Msg("solving")

	s := &solver{params: params, outDir: opts.outDir, compression: compression}
	results := parallel.Map(ctx, pool, paths, s.solveFile)
	failed := 0
	for i, r := range results {
		if r.Err != nil {
			failed++
			log.Error().Err(r.Err).Str("instance", paths[i]).Msg("instance failed")
			continue
		}
		r.Value.print(stdout)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d instances failed", failed, len(paths))
	}
	return nil
}

// overrideParameters copies to params the flags set on the command line.
func overrideParameters(params *routing.Parameters, flags routing.Parameters, changed func(string) bool) {
	if changed("time-limit") {
		params.TimeLimit = flags.TimeLimit
	}
	if changed("solution-limit") {
		params.SolutionLimit = flags.SolutionLimit
	}
	if changed("first-solution") {
		params.FirstSolution = flags.FirstSolution
	}
	if changed("metaheuristic") {
		params.Metaheuristic = flags.Metaheuristic
	}
	if changed("dfs") {
		params.DFS = flags.DFS
	}
	if changed("trace") {
		params.Trace = flags.Trace
	}
}

type solver struct {
	params      routing.Parameters
	outDir      string
	compression routing.Compression
}

// report is the outcome of one instance.
type report struct {
	name       string
	status     routing.Status
	cost       int64
	lowerBound int64
	routes     [][]int64
	starts     []int64
	ends       []int64
	elapsed    time.Duration
	stats      string
}

func (s *solver) solveFile(ctx context.Context, path string) (*report, error) {
	inst, err := LoadInstance(path)
	if err != nil {
		return nil, err
	}
	m, err := inst.Build(s.params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inst.Name, err)
	}
	m.CloseModel()

	start := time.Now()
	var solution *cp.Assignment
	if len(inst.Routes) > 0 {
		solution, err = m.SolveFromRoutes(ctx, inst.Routes)
	} else {
		solution, err = m.Solve(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inst.Name, err)
	}
	r := &report{
		name:       inst.Name,
		status:     m.Status(),
		cost:       solution.ObjectiveValue(),
		lowerBound: m.ComputeLowerBound(),
		elapsed:    time.Since(start),
	}
	if compact := m.CompactAssignment(solution); compact != nil {
		solution = compact
	}
	if r.routes, err = m.AssignmentToRoutes(solution); err != nil {
		return nil, fmt.Errorf("%s: %w", inst.Name, err)
	}
	for v := 0; v < m.Vehicles(); v++ {
		r.starts = append(r.starts, m.IndexToNode(m.Start(v)))
		r.ends = append(r.ends, m.IndexToNode(m.End(v)))
	}
	st := m.Stats()
	r.stats = fmt.Sprintf("branches=%d neighbors=%d accepted=%d", st.Branches, st.Neighbors, st.AcceptedNeighbors)

	if s.outDir != "" {
		out := filepath.Join(s.outDir, inst.Name+".sol")
		if err := m.WriteAssignment(out, s.compression); err != nil {
			return nil, fmt.Errorf("%s: %w", inst.Name, err)
		}
	}
	return r, nil
}

func (r *report) print(w io.Writer) {
	fmt.Fprintf(w, "%s: %s cost=%d", r.name, r.status, r.cost)
	if r.lowerBound > 0 {
		fmt.Fprintf(w, " lower_bound=%d", r.lowerBound)
	}
	fmt.Fprintf(w, " time=%s %s\n", r.elapsed.Round(time.Millisecond), r.stats)
	for v, route := range r.routes {
		if len(route) == 0 {
			continue
		}
		nodes := make([]string, 0, len(route)+2)
		nodes = append(nodes, strconv.FormatInt(r.starts[v], 10))
		for _, node := range route {
			nodes = append(nodes, strconv.FormatInt(node, 10))
		}
		nodes = append(nodes, strconv.FormatInt(r.ends[v], 10))
		fmt.Fprintf(w, "  vehicle %d: %s\n", v, strings.Join(nodes, " -> "))
	}
}
