// Package tor provides Tor connectivity helpers for crawlkit.
//
// EmbeddedTor wraps the tornago library to run a Tor daemon in-process;
// Ready returns its SOCKS5 address once a handshake succeeds, and the HTTP
// transport dials through it. VerifyProxy checks any other configured
// SOCKS5 proxy before a crawl starts, and CheckSeeds recognizes .onion
// seeds that can only be reached through Tor.
package tor
