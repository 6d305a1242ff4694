// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run lifecycle: loading a pipe library,
// validating it against the registered functions, binding the run inputs and
// executing the root pipe. It is decoupled from any specific entrypoint like
// a CLI or server.
package app
