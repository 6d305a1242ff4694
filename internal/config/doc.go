// Package config defines the format-agnostic model of a pipe library and the
// Loader interface that produces it.
//
// The `config.Model` is the single source of truth for the `validator` and
// `interpreter` packages. Concrete loaders, such as the HCL one, live in
// separate packages.
package config
