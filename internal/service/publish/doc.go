// Package publish implements the out flow: upload the single version built
// into a local channel directory to the remote channel, at most once.
package publish
