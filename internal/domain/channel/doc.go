// Package channel contains the core domain types of a conda channel.
//
// It defines Record and Entry (one artifact published to a channel), the
// Catalog that orders package versions with PEP 440 precedence, and the error
// kinds shared by the connector, repository and service layers.
package channel
