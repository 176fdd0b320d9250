/*
Package config parses the single YAML input file of spec §6: one
Strategy-selecting block plus, per strategy, its own Begin<Alg>/End<Alg>
configuration keys ("Recognized keys per strategy"). The teacher has no
configuration-file reader at all (its example/* programs hard-code
parameters in Go); this package is grounded on the spec's key table and
uses gopkg.in/yaml.v2, matching SPEC_FULL.md's ambient-stack decision to
promote it to a direct dependency for this purpose.

Unknown keys within a strategy's block are ignored: yaml.Unmarshal drops
keys that are not fields of the destination struct, and neither this
package nor its callers log them.
*/
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// PSOBlock is BeginPSO/EndPSO (spec §6): also used for APPSO, which is the
// same key set run with more than one worker.
type PSOBlock struct {
	SwarmSize           int     `yaml:"SwarmSize"`
	NumGenerations       int     `yaml:"NumGenerations"`
	ConstrictionFactor   float64 `yaml:"ConstrictionFactor"`
	CognitiveParam       float64 `yaml:"CognitiveParam"`
	SocialParam          float64 `yaml:"SocialParam"`
	InertiaWeight        float64 `yaml:"InertiaWeight"`
	InertiaReductionRate string  `yaml:"InertiaReductionRate"` // number or "linear"
	InitPopulationMethod string  `yaml:"InitPopulationMethod"` // random|quadtree|lhs
	ConvergenceVal       float64 `yaml:"ConvergenceVal"`
}

// DDSBlock is BeginDDS/EndDDS (spec §6): also used for PDDS.
type DDSBlock struct {
	PerturbationValue   float64 `yaml:"PerturbationValue"`
	MaxIterations       int     `yaml:"MaxIterations"`
	UseInitialParamValues bool  `yaml:"UseInitialParamValues"`
	UseRandomParamValues  bool  `yaml:"UseRandomParamValues"`
	EnableDebugging     bool    `yaml:"EnableDebugging"`
	UseOpt              string  `yaml:"UseOpt"` // standard|no-rand-num|try-int-solution
	AlphaValue          float64 `yaml:"AlphaValue"`
	BetaValue           float64 `yaml:"BetaValue"`
}

// PADDSBlock is BeginPADDS/EndPADDS (spec §6): also used for ParaPADDS.
type PADDSBlock struct {
	PerturbationValue float64 `yaml:"PerturbationValue"`
	MaxIterations     int     `yaml:"MaxIterations"`
	SelectionMetric   string  `yaml:"SelectionMetric"` // random|crowdingdistance|estimatedhypervolumecontribution|exacthypervolumecontribution
}

// SCEBlock is BeginSCE-UA/EndSCE-UA (spec §6).
type SCEBlock struct {
	Budget                 int     `yaml:"Budget"`
	LoopStagnationCriteria int     `yaml:"LoopStagnationCriteria"`
	PctChangeCriteria      float64 `yaml:"PctChangeCriteria"`
	PopConvCriteria        float64 `yaml:"PopConvCriteria"`
	NumComplexes           int     `yaml:"NumComplexes"`
	NumPointsPerComplex    int     `yaml:"NumPointsPerComplex"`
	NumPointsPerSubComplex int     `yaml:"NumPointsPerSubComplex"`
	NumEvolutionSteps      int     `yaml:"NumEvolutionSteps"`
	MinNumOfComplexes      int     `yaml:"MinNumOfComplexes"`
	UseInitialPoint        bool    `yaml:"UseInitialPoint"`
}

// SABlock is BeginSA/EndSA (spec §6): also used for VSA and CSA.
type SABlock struct {
	NumInitialTrials      int     `yaml:"NumInitialTrials"`
	TemperatureScaleFactor float64 `yaml:"TemperatureScaleFactor"`
	FinalTemperature      string  `yaml:"FinalTemperature"` // number, "computed-vanderbilt", or "computed-ben-ameur"
	TransitionMethod      string  `yaml:"TransitionMethod"`  // uniform|gauss|vanderbilt
	OuterIterations       int     `yaml:"OuterIterations"`
	InnerIterations       int     `yaml:"InnerIterations"`
	ConvergenceVal        float64 `yaml:"ConvergenceVal"`
}

// DDSAUBlock is BeginDDSAU/EndDDSAU (spec §6).
type DDSAUBlock struct {
	PerturbationValue float64 `yaml:"PerturbationValue"`
	NumSearches       int     `yaml:"NumSearches"`
	Threshold         float64 `yaml:"Threshold"`
	MinItersPerSearch int     `yaml:"MinItersPerSearch"`
	MaxItersPerSearch int     `yaml:"MaxItersPerSearch"`
	ParallelSearches  bool    `yaml:"ParallelSearches"`
	Randomize         bool    `yaml:"Randomize"`
	ReviseAU          bool    `yaml:"ReviseAU"`
}

// GMLMSBlock is BeginGML-MS/EndGML-MS: keys are this port's addition since
// spec §6's table calls itself "not exhaustive."
type GMLMSBlock struct {
	NumMultiStarts       int     `yaml:"NumMultiStarts"`
	MaxLMIterations      int     `yaml:"MaxLMIterations"`
	LambdaInit           float64 `yaml:"LambdaInit"`
	LambdaScaleBeta      float64 `yaml:"LambdaScaleBeta"`
	ConvergenceVal       float64 `yaml:"ConvergenceVal"`
	FiniteDifferenceStep float64 `yaml:"FiniteDifferenceStep"`
}

// ParamSpec is one row of a BeginParams/EndParams block: a parameter's
// descriptor plus its bounds and initial estimate (spec §6's parameter
// descriptor contract).
type ParamSpec struct {
	Name    string  `yaml:"Name"`
	Type    string  `yaml:"Type"` // real|integer
	LwrBnd  float64 `yaml:"LwrBnd"`
	UprBnd  float64 `yaml:"UprBnd"`
	EstVal  float64 `yaml:"EstVal"`
}

// Root is the top-level configuration file (spec §6): strategy selection
// plus run-wide settings, followed by the selected strategy's own block and
// an optional BeginInitParams block.
type Root struct {
	Strategy           string      `yaml:"Strategy"`
	Seed               int64       `yaml:"Seed"`
	Workers             int         `yaml:"Workers"`
	SynchronousReceive  bool        `yaml:"SynchronousReceive"`
	OutputLog           string      `yaml:"OutputLog"`
	ResumeLog           string      `yaml:"ResumeLog"`
	QuitSentinel        string      `yaml:"QuitSentinel"`
	Params              []ParamSpec `yaml:"BeginParams"`

	PSO   *PSOBlock   `yaml:"BeginPSO"`
	DDS   *DDSBlock   `yaml:"BeginDDS"`
	PADDS *PADDSBlock `yaml:"BeginPADDS"`
	SCEUA *SCEBlock   `yaml:"BeginSCE-UA"`
	SA    *SABlock    `yaml:"BeginSA"`
	DDSAU *DDSAUBlock `yaml:"BeginDDSAU"`
	GMLMS *GMLMSBlock `yaml:"BeginGML-MS"`

	InitParams [][]float64 `yaml:"BeginInitParams"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var root Root
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &root, nil
}
