// Package transport provides the default network transport for the client.
//
// HTTP executes calls with net/http: pooled connections, TLS, a cookie jar
// scoped by the public suffix list, a bounded redirect chain and an optional
// SOCKS5 proxy (a local Tor daemon or any other SOCKS5 server). Compressed
// bodies (gzip, deflate, br) are decoded here so the rest of the crawler only
// ever sees plain bytes. Every failure is returned as a
// *client.TransportError classified by Classify.
package transport
