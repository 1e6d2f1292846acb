// Package strata carries build-level metadata shared by the CLI and
// consumers of the library.
package strata

// Version is the semantic version of the strata module. Bumped on release.
const Version = "0.1.0"
