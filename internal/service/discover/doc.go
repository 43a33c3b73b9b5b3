// Package discover implements the check flow: list the versions of a package
// in a remote channel that are at or after the last version the pipeline saw.
package discover
