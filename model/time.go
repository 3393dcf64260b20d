package model

import "math"

// TimePoint specifies a point on the simulated time axis, in seconds.
type TimePoint = float64

// TimeDuration specifies a length of simulated time, in seconds.
// If t1 and t2 are TimePoints, t2-t1 is a TimeDuration.
type TimeDuration = float64

// Eternity is a TimePoint that lies infinitely far in the future. It is
// used as a stop time to mean "no predefined maximum time".
var Eternity = TimePoint(math.Inf(1))

// StepID uniquely identifies a time step within an execution.
type StepID = int32

// InvalidStepID is never used for an actual time step.
const InvalidStepID StepID = -1
