// Package indexer rebuilds the repodata and browsable index pages of a local
// channel directory from the package archives it contains.
//
// Both archive formats are read: ".tar.bz2" and the v2 ".conda" zip whose
// info-*.tar.zst member carries the metadata. Each call takes its own Config;
// the package keeps no state between calls.
package indexer
