/*
Package kit is the high-level run manager, grounded directly on the
teacher's psokit.ManPso: a name-registry dispatch table (there, CreateFun/
CreatePso keyed by string case name; here, a CreateModel registry keyed by
problem name plus a closed switch over strategy.Kind, per spec §9's "no
plugins in the core"). It owns the single *logrus.Logger for a run (spec
SPEC_FULL.md's ambient-stack decision: "a single logrus logger for a run,
passed down; strategies never construct their own") and the optional
gonum/plot convergence-plot action.
*/
package kit

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/mathrgo/calibrate/archive"
	"github.com/mathrgo/calibrate/calibrand/config"
	"github.com/mathrgo/calibrate/model"
	"github.com/mathrgo/calibrate/param"
	"github.com/mathrgo/calibrate/rng"
	"github.com/mathrgo/calibrate/runctx"
	"github.com/mathrgo/calibrate/runlog"
	"github.com/mathrgo/calibrate/strategy"
	"github.com/mathrgo/calibrate/strategy/dds"
	"github.com/mathrgo/calibrate/strategy/ddsau"
	"github.com/mathrgo/calibrate/strategy/gmlms"
	"github.com/mathrgo/calibrate/strategy/padds"
	"github.com/mathrgo/calibrate/strategy/pso"
	"github.com/mathrgo/calibrate/strategy/sa"
	"github.com/mathrgo/calibrate/strategy/sce"
	"github.com/mathrgo/calibrate/warmstart"
)

/*
CreateModel builds one model.Adapter instance per worker over grp, the
analogue of the teacher's CreateFun.Create(sd). runID identifies the run
(runlog.NewRunID) so an out-of-process adapter can derive a collision-free
per-worker directory via runlog.WorkerDir (spec §5's shared-resource policy).
*/
type CreateModel interface {
	Create(grp *param.Group, runID string, workerID int) model.Adapter
}

// CreateModelFunc adapts a plain function to CreateModel.
type CreateModelFunc func(grp *param.Group, runID string, workerID int) model.Adapter

func (f CreateModelFunc) Create(grp *param.Group, runID string, workerID int) model.Adapter {
	return f(grp, runID, workerID)
}

// Man manages one calibration run: it owns the registered problems, the
// logger, and the strategy selected from the loaded configuration.
type Man struct {
	Log   *logrus.Logger
	RunID string

	modeld   map[string]string
	addedMod map[string]CreateModel

	cfg *config.Root
	grp *param.Group
	s   strategy.Strategy
}

// New constructs a Man with a logrus logger formatted the way the teacher's
// ManPso formats its own debug prints: a plain text formatter, no color
// codes (these runs are as likely to be piped to a file as to a terminal).
func New() *Man {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Man{Log: log, modeld: map[string]string{}, addedMod: map[string]CreateModel{}}
}

// AddModel registers a problem under name, with descr shown by
// ListModels, mirroring ManPso.AddFun.
func (m *Man) AddModel(name, descr string, c CreateModel) {
	m.modeld[name] = descr
	m.addedMod[name] = c
}

// ListModels returns the registered problem names and descriptions.
func (m *Man) ListModels() map[string]string { return m.modeld }

/*
LoadConfig reads the YAML configuration at path (spec §6) and builds the
parameter group it describes. Unknown strategy-block keys are dropped by
the typed yaml.Unmarshal target and are not reported; LoadConfig does not
check for unset fields either.
*/
func (m *Man) LoadConfig(path string) error {
	root, err := config.Load(path)
	if err != nil {
		return err
	}
	m.cfg = root

	descs := make([]param.Descriptor, len(root.Params))
	for i, p := range root.Params {
		typ := param.Real
		if p.Type == "integer" {
			typ = param.Integer
		}
		descs[i] = &param.Param{Name: p.Name, Lwr: p.LwrBnd, Upr: p.UprBnd, Val: p.EstVal, Typ: typ}
	}
	m.grp = param.NewGroup(descs, 0)
	m.Log.WithField("strategy", root.Strategy).Info("configuration loaded")
	return nil
}

// Group returns the parameter group built from the loaded configuration.
func (m *Man) Group() *param.Group { return m.grp }

/*
Build constructs the strategy selected by the loaded configuration's
Strategy field, instantiating one model.Adapter per worker via the
registered modelName (spec §9's closed dispatch table over
{PSO,APPSO,DDS,PDDS,PADDS,ParaPADDS,SCE-UA,SA,VSA,CSA,DDSAU,GML-MS}).
*/
func (m *Man) Build(modelName string) error {
	if m.cfg == nil {
		return fmt.Errorf("kit: LoadConfig must be called before Build")
	}
	creator, ok := m.addedMod[modelName]
	if !ok {
		return fmt.Errorf("kit: no model registered under %q", modelName)
	}

	workers := m.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	m.RunID = runlog.NewRunID()
	adapters := make([]model.Adapter, workers)
	for i := range adapters {
		adapters[i] = creator.Create(m.grp, m.RunID, i)
	}
	m.Log.WithField("runID", m.RunID).Info("run identifier minted")

	rnd := rng.New(m.cfg.Seed)
	rc := runctx.New(m.cfg.Seed, totalBudget(m.cfg))

	s, err := m.buildStrategy(rnd, rc, adapters)
	if err != nil {
		return err
	}
	m.s = s

	if len(m.cfg.InitParams) > 0 {
		applyInitParams(s, m.grp, m.cfg.InitParams[0])
	}

	if m.cfg.ResumeLog != "" {
		applied, err := warmstart.Apply(m.cfg.ResumeLog, s)
		if err != nil {
			m.Log.WithError(err).Warn("resume log present but unreadable")
		} else if applied {
			m.Log.Info("warm-started from resume log")
		}
	}
	return nil
}

/*
applyInitParams seeds s with the first row of a BeginInitParams block
(spec §6: "up to S initial candidate vectors ... in input units;
conversion is applied"), running each value through its parameter
descriptor's unit converter before handing it to WarmStart. Only the
strategy interface's single WarmStart slot is available, so additional
rows beyond the first are presently unused.
*/
func applyInitParams(s strategy.Strategy, grp *param.Group, row []float64) {
	x := make([]float64, len(row))
	for i, v := range row {
		if i < grp.N() {
			x[i] = grp.Descriptor(i).ConvertInVal(v)
		} else {
			x[i] = v
		}
	}
	s.WarmStart(x, 0)
}

func totalBudget(root *config.Root) int {
	switch {
	case root.PSO != nil:
		return root.PSO.SwarmSize * root.PSO.NumGenerations
	case root.DDS != nil:
		return root.DDS.MaxIterations
	case root.PADDS != nil:
		return root.PADDS.MaxIterations
	case root.SCEUA != nil:
		return root.SCEUA.Budget
	case root.SA != nil:
		return root.SA.OuterIterations * root.SA.InnerIterations
	case root.DDSAU != nil:
		return root.DDSAU.NumSearches * root.DDSAU.MaxItersPerSearch
	case root.GMLMS != nil:
		return root.GMLMS.NumMultiStarts * root.GMLMS.MaxLMIterations
	default:
		return 0
	}
}

func (m *Man) buildStrategy(rnd *rng.Source, rc *runctx.Context, adapters []model.Adapter) (strategy.Strategy, error) {
	root := m.cfg
	switch root.Strategy {
	case "PSO", "APPSO":
		if root.PSO == nil {
			return nil, fmt.Errorf("kit: Strategy=%s requires a BeginPSO block", root.Strategy)
		}
		b := root.PSO
		cfg := pso.Config{
			SwarmSize:          b.SwarmSize,
			MaxGenerations:     b.NumGenerations,
			Inertia:            b.InertiaWeight,
			CognitiveParam:     b.CognitiveParam,
			SocialParam:        b.SocialParam,
			Constriction:       b.ConstrictionFactor,
			ConvergenceVal:     b.ConvergenceVal,
			SynchronousReceive: root.SynchronousReceive,
		}
		if b.InertiaReductionRate == "linear" {
			cfg.InertiaReduction = pso.InertiaLinear
		} else {
			cfg.InertiaReduction = pso.InertiaGeometric
			var rate float64
			fmt.Sscanf(b.InertiaReductionRate, "%f", &rate)
			cfg.InertiaRate = rate
		}
		// "lhs" has no dedicated sampler here and falls back to
		// InitRandom, same as the unset default.
		if b.InitPopulationMethod == "quadtree" {
			cfg.InitMethod = pso.InitQuadtree
		}
		return pso.New(cfg, m.grp, rnd, rc, adapters), nil

	case "DDS", "PDDS":
		if root.DDS == nil {
			return nil, fmt.Errorf("kit: Strategy=%s requires a BeginDDS block", root.Strategy)
		}
		b := root.DDS
		cfg := dds.Config{
			Budget:                b.MaxIterations,
			PerturbR:              b.PerturbationValue,
			SynchronousReceive:    root.SynchronousReceive,
			UseInitialParamValues: b.UseInitialParamValues,
			UseRandomParamValues:  b.UseRandomParamValues,
			Opt:                   ddsVariant(b.UseOpt),
			Alpha:                 b.AlphaValue,
			Beta:                  b.BetaValue,
		}
		if b.EnableDebugging {
			cfg.DebugLog = func(iter int, f float64) {
				m.Log.WithFields(logrus.Fields{"iter": iter, "best": f}).Debug("dds iteration")
			}
		}
		return dds.New(cfg, m.grp, rnd, rc, adapters), nil

	case "PADDS", "ParaPADDS":
		if root.PADDS == nil {
			return nil, fmt.Errorf("kit: Strategy=%s requires a BeginPADDS block", root.Strategy)
		}
		b := root.PADDS
		cfg := padds.Config{Budget: b.MaxIterations, PerturbR: b.PerturbationValue, SelectionMetric: selectionMetric(b.SelectionMetric), SynchronousReceive: root.SynchronousReceive}
		return padds.New(cfg, m.grp, rnd, rc, adapters), nil

	case "SCE-UA", "SCEUA":
		if root.SCEUA == nil {
			return nil, fmt.Errorf("kit: Strategy=%s requires a BeginSCE-UA block", root.Strategy)
		}
		b := root.SCEUA
		cfg := sce.Config{
			NumComplexes:             b.NumComplexes,
			PointsPerComplex:         b.NumPointsPerComplex,
			PointsPerSubComplex:      b.NumPointsPerSubComplex,
			EvolutionStepsPerShuffle: b.NumEvolutionSteps,
			Budget:                   b.Budget,
			LoopStagnation:           b.LoopStagnationCriteria,
			PctChangeCriteria:        b.PctChangeCriteria,
			PopConvCriteria:          b.PopConvCriteria,
			MinNumOfComplexes:        b.MinNumOfComplexes,
			UseInitialPoint:          b.UseInitialPoint,
		}
		return sce.New(cfg, m.grp, rnd, rc, adapters[0]), nil

	case "SA", "VSA", "CSA":
		if root.SA == nil {
			return nil, fmt.Errorf("kit: Strategy=%s requires a BeginSA block", root.Strategy)
		}
		b := root.SA
		cfg := sa.Config{
			NumInitialTrials:   b.NumInitialTrials,
			OuterIterations:    b.OuterIterations,
			InnerIterations:    b.InnerIterations,
			ConvergenceVal:     b.ConvergenceVal,
			SynchronousReceive: root.SynchronousReceive,
		}
		cfg.TemperaturePolicy, cfg.FinalTemperature = temperaturePolicy(b.FinalTemperature)
		cfg.TransitionMethod = transitionMethod(b.TransitionMethod)
		if root.Strategy == "CSA" {
			cfg.Mode = sa.ModeCombinatorial
		}
		return sa.New(cfg, m.grp, rnd, rc, adapters), nil

	case "DDSAU":
		if root.DDSAU == nil {
			return nil, fmt.Errorf("kit: Strategy=DDSAU requires a BeginDDSAU block")
		}
		b := root.DDSAU
		cfg := ddsau.Config{
			PerturbationValue: b.PerturbationValue,
			NumSearches:       b.NumSearches,
			Threshold:         b.Threshold,
			MinItersPerSearch: b.MinItersPerSearch,
			MaxItersPerSearch: b.MaxItersPerSearch,
			ParallelSearches:  b.ParallelSearches,
			Randomize:         b.Randomize,
			ReviseAU:          b.ReviseAU,
		}
		if root.ResumeLog != "" {
			cfg.ResumeChecker = warmstart.ResumeChecker(func(i int) string {
				return fmt.Sprintf("%s.search%d", root.ResumeLog, i)
			})
		}
		return ddsau.New(cfg, m.grp, rnd, rc, adapters), nil

	case "GML-MS", "GMLMS":
		if root.GMLMS == nil {
			return nil, fmt.Errorf("kit: Strategy=GML-MS requires a BeginGML-MS block")
		}
		b := root.GMLMS
		cfg := gmlms.Config{
			NumMultiStarts:       b.NumMultiStarts,
			MaxLMIterations:      b.MaxLMIterations,
			LambdaInit:           b.LambdaInit,
			LambdaScaleBeta:      b.LambdaScaleBeta,
			ConvergenceVal:       b.ConvergenceVal,
			FiniteDifferenceStep: b.FiniteDifferenceStep,
			SynchronousReceive:   root.SynchronousReceive,
		}
		return gmlms.New(cfg, m.grp, rnd, rc, adapters), nil

	default:
		return nil, fmt.Errorf("kit: unrecognized Strategy %q", root.Strategy)
	}
}

func selectionMetric(name string) archive.ZScheme {
	// archive.ZScheme's zero value (ZRandom) is the spec-compliant default
	// when SelectionMetric is unset or unrecognized.
	switch name {
	case "crowdingdistance":
		return archive.ZCrowding
	case "estimatedhypervolumecontribution":
		return archive.ZHVMonteCarlo
	case "exacthypervolumecontribution":
		return archive.ZHVExact
	default:
		return archive.ZRandom
	}
}

func ddsVariant(useOpt string) dds.Variant {
	switch useOpt {
	case "no-rand-num":
		return dds.OptNoRandNum
	case "try-int-solution":
		return dds.OptTryIntSolution
	default:
		return dds.OptStandard
	}
}

func temperaturePolicy(finalTemp string) (sa.TemperaturePolicy, float64) {
	switch finalTemp {
	case "computed-vanderbilt", "":
		return sa.Vanderbilt, 0
	case "computed-ben-ameur":
		return sa.BenAmeur, 0
	default:
		var v float64
		fmt.Sscanf(finalTemp, "%f", &v)
		return sa.UserSpecified, v
	}
}

func transitionMethod(name string) sa.TransitionMethod {
	switch name {
	case "gauss":
		return sa.TransitionGauss
	case "vanderbilt":
		return sa.TransitionVanderbiltStep
	default:
		return sa.TransitionUniform
	}
}

/*
Run executes Initialize then Optimize on the built strategy, writes its
metrics to OutputLog, and logs start/end at Info level the way ManPso's
RunInit/Result/Summary action points would (spec SPEC_FULL.md's ambient
logging decision).
*/
func (m *Man) Run(ctx context.Context) error {
	if m.s == nil {
		return fmt.Errorf("kit: Build must be called before Run")
	}
	m.Log.WithField("kind", m.s.Kind().String()).Info("run starting")

	if err := m.s.Initialize(ctx); err != nil {
		m.Log.WithError(err).Error("initialize failed")
		return err
	}
	if err := m.s.Optimize(ctx); err != nil {
		m.Log.WithError(err).Error("optimize failed")
		return err
	}

	if m.cfg.OutputLog != "" {
		f, err := os.OpenFile(m.cfg.OutputLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("kit: open output log: %w", err)
		}
		defer f.Close()
		if err := m.s.WriteMetrics(f); err != nil {
			return fmt.Errorf("kit: write metrics: %w", err)
		}
	}

	m.Log.Info("run finished")
	return nil
}

// QuitRequested reports whether the configured quit sentinel (spec §6/§7)
// is present.
func (m *Man) QuitRequested() bool {
	if m.cfg == nil || m.cfg.QuitSentinel == "" {
		return false
	}
	return runlog.QuitRequested(m.cfg.QuitSentinel)
}

/*
PlotConvergence renders the best-objective-per-iteration trace in records
to a PNG at path, using gonum.org/v1/plot exactly as the teacher's own
gonum/plot convergence diagnostics do (SPEC_FULL.md keeps this dependency
verbatim from the teacher).
*/
func PlotConvergence(path string, records []runlog.Record) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = "convergence"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "best objective"

	pts := make(plotter.XYs, len(records))
	for i, r := range records {
		pts[i].X = float64(r.Iter)
		pts[i].Y = r.Best
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	p.Add(line)
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
