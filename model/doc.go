// Package model defines the value types that describe the structure of a
// co-simulation: time points, variable and slave-type descriptions, scalar
// values and qualified variable names.
//
// Everything in this package is a plain value type with no behaviour beyond
// validation and lookup. The types are shared between the master and slave
// sides of the runtime and are immutable once published to either.
package model
