// Package connector opens scoped connections to remote conda channels.
//
// A Connector downloads channel files and uploads a locally built version.
// Object-like transports (local directory, FTP, S3, MinIO) implement the
// small Store interface and share one upload algorithm: take the channel
// lock, load the remote repodata, store the artifacts, then store the
// merged repodata. The anaconda.org transport downloads over HTTPS and
// uploads through the anaconda CLI.
package connector
