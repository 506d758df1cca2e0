// Package cli parses the bundlehost command line, loads the configuration it points to
// and maps failures to process exit codes.
package cli
