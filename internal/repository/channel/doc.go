// Package channel implements the query facade over a conda channel's
// repodata, read either from a live connector or from a local directory.
//
// Data resolves package names to versions and (name, version) pairs to
// artifact entries, and renders merged repodata.json files after new
// entries are added.
package channel
