// Package deploy holds the pure install/update/no-op decision logic,
// kept free of I/O so it can be tested exhaustively.
package deploy
