// Package common holds helpers shared by the check, in and out flows:
// resolving the effective source, opening and releasing the channel
// connection, and identifying who runs a flow.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
