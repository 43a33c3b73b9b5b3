// Package resource defines the JSON request and response envelopes exchanged
// with the pipeline on stdin and stdout by the check, in and out commands.
package resource
