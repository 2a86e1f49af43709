// Package publisher prepares the release manifest consumed by selfupdate.
//
// It computes the checksum of a freshly built macdeploy binary and persists
// the resulting YAML, which is uploaded to the update folder served to the
// fleet.
package publisher
