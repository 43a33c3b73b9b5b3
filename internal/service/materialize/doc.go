// Package materialize implements the in flow: fetch every artifact of one
// version into a working directory, index it as a channel and record the
// pinned version spec.
package materialize
