package teleop

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultMinScale      = 0.1
	defaultInitialScale  = 0.5
	defaultReactionDelay = 500 * time.Millisecond
)

// Params is the resolved teleoperation configuration. It is built once at
// startup and never mutated afterwards.
type Params struct {
	// Indices into a sample's button array. -1 means unassigned.
	EnableButton    int
	IncrementButton int
	DecrementButton int

	// Logical axis name ("x", "y", "z") to index into a sample's axis array.
	AxisPositionMap    map[string]int
	AxisOrientationMap map[string]int

	// Bounds on the velocity scale. MaxScale comes from
	// max_displacement_in_a_second and stays 0.0 when unset.
	MaxScale float64
	MinScale float64

	// Pause enforced after a scale change so a held button does not step
	// the scale once per incoming sample.
	ReactionDelay time.Duration
}

// DefaultParams returns the configuration used when no parameter file is
// given: enable on button 0, scale buttons unassigned, no axes mapped.
func DefaultParams() Params {
	return Params{
		EnableButton:       0,
		IncrementButton:    -1,
		DecrementButton:    -1,
		AxisPositionMap:    map[string]int{},
		AxisOrientationMap: map[string]int{},
		MaxScale:           0.0,
		MinScale:           defaultMinScale,
		ReactionDelay:      defaultReactionDelay,
	}
}

// paramsFile mirrors the YAML parameter surface. Pointer fields distinguish
// "unset" from an explicit zero.
type paramsFile struct {
	EnableMov          *int           `yaml:"enable_mov"`
	IncrementVelocity  *int           `yaml:"increment_velocity"`
	DecrementVelocity  *int           `yaml:"decrement_velocity"`
	AxisPositionMap    map[string]int `yaml:"axis_position_map"`
	AxisOrientationMap map[string]int `yaml:"axis_orientation_map"`
	MaxDisplacement    *float64       `yaml:"max_displacement_in_a_second"`
}

// LoadParams reads a YAML parameter file and resolves it against the
// defaults. Unset keys silently take their default value; button and axis
// indices are not checked against any particular controller layout, since
// out-of-range lookups degrade to zero at sampling time.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("failed to read params file: %w", err)
	}

	var file paramsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Params{}, fmt.Errorf("failed to parse params file: %w", err)
	}

	return resolveParams(file), nil
}

func resolveParams(file paramsFile) Params {
	p := DefaultParams()

	if file.EnableMov != nil {
		p.EnableButton = *file.EnableMov
	}
	if file.IncrementVelocity != nil {
		p.IncrementButton = *file.IncrementVelocity
	}
	if file.DecrementVelocity != nil {
		p.DecrementButton = *file.DecrementVelocity
	}
	if file.AxisPositionMap != nil {
		p.AxisPositionMap = file.AxisPositionMap
	}
	if file.AxisOrientationMap != nil {
		p.AxisOrientationMap = file.AxisOrientationMap
	}
	if file.MaxDisplacement != nil {
		p.MaxScale = *file.MaxDisplacement
	} else {
		log.Printf("Params: max_displacement_in_a_second not set, velocity scale cannot grow")
	}

	return p
}
