// Package validation provides argument checks for constructors across the
// flowpipe packages.
//
// Every function returns nil or a *errors.ValidationError, so constructors
// report consistent messages and hints.
package validation
