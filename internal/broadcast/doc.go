// Package broadcast implements the live viewer registry using the actor pattern.
//
// A single goroutine owns the set of connections and processes register,
// unregister and broadcast commands from one channel, so no mutexes guard the
// set. Each connection has its own writer goroutine with a bounded buffer; a
// full buffer or a failed write removes that connection without affecting the
// others.
package broadcast
