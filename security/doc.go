// Package security screens untrusted user input before it reaches any
// downstream system.
//
// The package is split into an immutable threat pattern catalog (named
// regex/severity pairs grouped by family) and a stateless validator that runs
// the catalog plus structural checks over raw text, returning a risk-leveled
// verdict with a sanitized copy of clean input. A companion user-agent
// analyzer flags automated clients.
//
// Keeping the catalog as data rather than scattered conditionals lets each
// pattern be unit-tested in isolation and extended without touching control
// flow.
package security
