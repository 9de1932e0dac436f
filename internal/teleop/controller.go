// Package teleop maps joystick samples to velocity commands for an
// omnidirectional mobile base.
package teleop

import (
	"context"
	"log"
	"math"
	"time"
)

// scaleStep is the multiplicative step applied per increment/decrement
// press. Increment then decrement does not round-trip exactly: the result
// is <= the starting scale because of clamping and the multiply/divide
// asymmetry.
const scaleStep = 1.2

// Sample is one joystick reading: button states and axis values in
// controller order. Samples are processed one at a time and not retained.
type Sample struct {
	Buttons []bool
	Axes    []float64
}

// Twist is a velocity command for the base: linear velocity on the ground
// plane plus rotation about the vertical axis.
type Twist struct {
	LinearX  float64
	LinearY  float64
	AngularZ float64
}

// PublishFunc receives each velocity command as it is produced.
type PublishFunc func(Twist)

// Controller turns joystick samples into velocity commands. It holds the
// current velocity scale and the last commanded twist. HandleSample must be
// called from a single goroutine; the controller does no locking.
//
// While a scale button is held, the previously stored twist is republished
// verbatim; it is not recomputed from the current sample's axes.
type Controller struct {
	params  Params
	publish PublishFunc

	scale   float64
	lastCmd Twist
}

// NewController creates a controller with the initial velocity scale.
// publish may be nil, in which case commands are only logged.
func NewController(params Params, publish PublishFunc) *Controller {
	return &Controller{
		params:  params,
		publish: publish,
		scale:   defaultInitialScale,
	}
}

// Scale returns the current velocity scale.
func (c *Controller) Scale() float64 { return c.scale }

// LastCommand returns the most recently published velocity command.
func (c *Controller) LastCommand() Twist { return c.lastCmd }

// HandleSample processes one joystick sample and publishes exactly one
// velocity command. When the enable button is not held the command is zero.
// The reaction delay after a scale change is awaited here, so the caller's
// dispatch loop is throttled while a scale button is held; ctx cancels the
// wait during shutdown.
func (c *Controller) HandleSample(ctx context.Context, s Sample) {
	if buttonPressed(s, c.params.EnableButton) {
		log.Printf("Teleop: enable button pressed")

		if buttonPressed(s, c.params.IncrementButton) || buttonPressed(s, c.params.DecrementButton) {
			c.adjustScale(ctx, s)
		} else {
			c.lastCmd = Twist{
				LinearX:  c.scale * axisValue(s, c.params.AxisPositionMap, "x"),
				LinearY:  c.scale * axisValue(s, c.params.AxisPositionMap, "y"),
				AngularZ: c.scale * axisValue(s, c.params.AxisOrientationMap, "z"),
			}
		}
	} else {
		// Enable released: decelerate to a stop.
		c.lastCmd = Twist{}
	}

	if c.publish != nil {
		c.publish(c.lastCmd)
	}
	logTwist(c.lastCmd, "Published velocity")
}

// adjustScale steps the velocity scale, increment winning when both buttons
// are held, then waits out the operator reaction delay.
func (c *Controller) adjustScale(ctx context.Context, s Sample) {
	if buttonPressed(s, c.params.IncrementButton) {
		c.scale = math.Min(c.scale*scaleStep, c.params.MaxScale)
		log.Printf("Teleop: velocity scale incremented to %f", c.scale)
	} else {
		c.scale = math.Max(c.scale/scaleStep, c.params.MinScale)
		log.Printf("Teleop: velocity scale decremented to %f", c.scale)
	}

	if c.params.ReactionDelay <= 0 {
		return
	}
	t := time.NewTimer(c.params.ReactionDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// axisValue reads the raw value of the axis mapped to name. Unmapped names
// and indices beyond the sample's axis array resolve to 0.0, so short or
// misconfigured samples degrade to no movement on that axis.
func axisValue(s Sample, axisMap map[string]int, name string) float64 {
	idx, ok := axisMap[name]
	if !ok || idx < 0 || idx >= len(s.Axes) {
		return 0.0
	}
	return s.Axes[idx]
}

func buttonPressed(s Sample, index int) bool {
	return index >= 0 && index < len(s.Buttons) && s.Buttons[index]
}

func logTwist(v Twist, label string) {
	log.Printf("%s - Lineal (x, y): (%.5f, %.5f), Angular (z): (%.5f)",
		label, v.LinearX, v.LinearY, v.AngularZ)
}
