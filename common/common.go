// Package common holds ambient pieces shared across the enclave runtime
// binaries: the package name used for metrics namespacing, the build version,
// and logger setup.
package common

// PackageName is used as the metrics namespace and the default service tag.
const PackageName = "enclaved"

// Version is set at build time via -ldflags.
var Version = "dev"
