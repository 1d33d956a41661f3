// Package client fetches requests and turns the results into responses.
//
// A Client applies request-level configuration (headers, cookies, query
// parameters, body encoding, timeout) on top of its own defaults, waits for
// per-host politeness limits, and executes the call through a Transport.
// The Transport is the only part that touches the network; the default
// implementation lives in package transport.
//
// Failures are typed. A request whose body cannot be encoded fails with a
// *ConfigError before anything is sent. Transport failures become a
// *TransportError whose Kind tells connection failures, timeouts and TLS
// errors apart. A status at or above the configured threshold becomes a
// *StatusError. In every failure case no Response is returned.
package client
