// Package version exposes build metadata for the resource binaries.
//
// Version, Commit and BuildTime are injected at build time via Go ldflags.
// Short and Full render them for the `version` subcommand and startup logs.
package version
