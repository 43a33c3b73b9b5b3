// Package testutil builds conda package archives and channel layouts for tests.
package testutil
