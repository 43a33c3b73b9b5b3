// Package config defines the closed set of source settings accepted by the
// resource and provides helpers to validate them and to load or save them
// as a YAML settings file.
//
// Source mirrors the `source` object of a pipeline resource definition.
// Unknown keys are rejected both in YAML files and in JSON requests.
package config
