// Package socks routes crawl traffic through a SOCKS5 proxy.
//
// A Client wraps a SOCKS5 dialer and builds *http.Client values for the
// fetch layer. EmbeddedTor starts a private Tor daemon via tornago, whose
// SOCKS port can then be used like any other proxy.
package socks
