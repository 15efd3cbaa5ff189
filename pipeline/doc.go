// Package pipeline runs a list of steps that may each answer with a value or
// with a future. The same step list serves a blocking caller when every step
// answers synchronously and a non-blocking caller otherwise.
package pipeline
