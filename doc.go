// Package scatterlink is a secure multipath tunnel engine. It
// maintains a mesh of encrypted peer sessions, routes outbound packets
// across several independent transmission paths ("dimensions") by
// load, and evolves its key material on a schedule to bound the
// exposure window of any single key.
//
// The root package wires the pieces together: a Node owns the crypto
// manager, the tunnel engine, the recall cache and the QUIC transport,
// and hands out Links that move sealed packets between peers.
package scatterlink
