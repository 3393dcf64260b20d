// Package bus implements the slave side of the execution bus: the agent
// state machine that responds to the master's control events, and the
// publish/subscribe channel over which slaves exchange variable values
// with their peers once per time step.
//
// The agent holds one state at a time (connecting, init, ready,
// published, step-failed, terminated) and transitions only on incoming
// control messages; unexpected events produce a protocol-error reply and
// no transition. Variable exchange is Jacobi-style: at every step each
// slave first publishes its own outputs, then reads one frame per
// subscribed input, applies them, and only then advances its model.
package bus
