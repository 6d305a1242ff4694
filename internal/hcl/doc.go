// Package hcl provides the HCL implementation of the config.Loader
// interface. It is responsible for file discovery, parsing, and the
// translation of decoded blocks into concepts and pipe definitions.
package hcl
