// Package testutil provides loopback servers shared by the package tests:
// echo targets and relaying SOCKS4 and SOCKS5 proxies.
package testutil
