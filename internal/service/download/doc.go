// Package download fetches installer disk images over HTTP.
//
// It bounds connection establishment with a dial timeout, retries failed
// transfers a fixed number of times, and stages bodies in a .partial file so
// an interrupted transfer never leaves a plausible-looking image behind. It
// also reads the Last-Modified header used for change detection.
package download
