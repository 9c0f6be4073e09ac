// Package app contains the core application logic: loading a notebook,
// compiling its cells, feeding them to the reactive engine and binding the
// display to their lifecycle. It is decoupled from any specific entrypoint
// like a CLI or server.
package app
