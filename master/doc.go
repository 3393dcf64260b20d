// Package master contains the master-process side of the runtime: the
// model builder that validates and freezes a simulation graph, and the
// execution controller that drives a set of slaves through their
// lifecycle and step loop.
//
// # Reading Guide
//
//   - model_builder.go: offline validation of slaves, connections and
//     initial values; produces the immutable Model
//   - options.go: execution-wide settings
//   - slave_controller.go: the per-slave protocol client, wrapping each
//     request in a future
//   - execution.go: the controller proper; a chain of future handlers
//     that runs entirely on the reactor
package master
