// Package selfupdate keeps the deployer binary itself current on fleet
// machines. It compares the embedded build version against a YAML release
// manifest hosted in the update folder and swaps the binary in place with
// checksum verification when they differ.
package selfupdate
