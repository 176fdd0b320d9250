/*
Command calibrate is the CLI front-end of the calibration/global-optimization
framework: a cobra-based driver over calibrand/kit, grounded on the cobra
root/subcommand layout used elsewhere in the corpus (persistent flags on a
root command, one RunE per verb). The teacher itself has no CLI at all
(example/* programs are single hard-coded mains); cobra is promoted to a
direct dependency per SPEC_FULL.md's ambient-stack decision.
*/
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/mathrgo/calibrate/calibrand/kit"
	"github.com/mathrgo/calibrate/model"
	"github.com/mathrgo/calibrate/param"
	"github.com/mathrgo/calibrate/strategy"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var modelName, cfgPath string

	root := &cobra.Command{
		Use:   "calibrate",
		Short: "Run global-optimization calibration strategies against a model",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the strategy named in the configuration file to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd.Context(), cfgPath, modelName)
		},
	}
	runCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to the YAML run configuration")
	runCmd.Flags().StringVarP(&modelName, "model", "m", "sphere", "registered model name to calibrate")
	_ = runCmd.MarkFlagRequired("config")

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume the strategy named in the configuration file from its ResumeLog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd.Context(), cfgPath, modelName)
		},
	}
	resumeCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to the YAML run configuration (must set ResumeLog)")
	resumeCmd.Flags().StringVarP(&modelName, "model", "m", "sphere", "registered model name to calibrate")
	_ = resumeCmd.MarkFlagRequired("config")

	listStrategiesCmd := &cobra.Command{
		Use:   "list-strategies",
		Short: "List the strategy names recognized by the Strategy config key",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range []strategy.Kind{
				strategy.PSO, strategy.APPSO, strategy.DDS, strategy.PDDS,
				strategy.PADDS, strategy.ParaPADDS, strategy.SCEUA,
				strategy.SA, strategy.VSA, strategy.CSA,
				strategy.DDSAU, strategy.GMLMS,
			} {
				fmt.Println(k.String())
			}
			return nil
		},
	}

	listModelsCmd := &cobra.Command{
		Use:   "list-models",
		Short: "List the model names registered with this binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, 0, len(builtinModels))
			for name := range builtinModels {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%s\t%s\n", name, builtinModels[name].descr)
			}
			return nil
		},
	}

	root.AddCommand(runCmd, resumeCmd, listStrategiesCmd, listModelsCmd)
	return root
}

/*
runConfig loads cfgPath, builds the strategy over the named model, and runs
it to completion, canceling the run context the moment the configuration's
QuitSentinel file appears or the process receives SIGINT — spec §6/§7's
cooperative-cancellation contract, "read at the top of every outer
iteration."
*/
func runConfig(parent context.Context, cfgPath, modelName string) error {
	m := kit.New()
	for name, b := range builtinModels {
		m.AddModel(name, b.descr, b.create)
	}

	if err := m.LoadConfig(cfgPath); err != nil {
		return err
	}
	if err := m.Build(modelName); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go pollQuitSentinel(ctx, cancel, m)

	return m.Run(ctx)
}

func pollQuitSentinel(ctx context.Context, cancel context.CancelFunc, m *kit.Man) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.QuitRequested() {
				cancel()
				return
			}
		}
	}
}

// builtinModel pairs a description with a calibrand/kit.CreateModel, the
// analogue of the teacher's fun/* problem registrations.
type builtinModel struct {
	descr  string
	create kit.CreateModelFunc
}

var builtinModels = map[string]builtinModel{
	"sphere": {
		descr: "sum of squares over the configured parameter vector",
		create: func(grp *param.Group, runID string, workerID int) model.Adapter {
			return model.NewFunc(grp, func(x []float64) float64 {
				s := 0.0
				for _, v := range x {
					s += v * v
				}
				return s
			})
		},
	},
	"rosenbrock": {
		descr: "generalized Rosenbrock valley over the configured parameter vector",
		create: func(grp *param.Group, runID string, workerID int) model.Adapter {
			return model.NewFunc(grp, func(x []float64) float64 {
				s := 0.0
				for i := 0; i+1 < len(x); i++ {
					t1 := x[i+1] - x[i]*x[i]
					t2 := 1 - x[i]
					s += 100*t1*t1 + t2*t2
				}
				return s
			})
		},
	},
	"rastrigin": {
		descr: "generalized Rastrigin function over the configured parameter vector",
		create: func(grp *param.Group, runID string, workerID int) model.Adapter {
			return model.NewFunc(grp, func(x []float64) float64 {
				s := 10 * float64(len(x))
				for _, v := range x {
					s += v*v - 10*math.Cos(2*math.Pi*v)
				}
				return s
			})
		},
	},
}
