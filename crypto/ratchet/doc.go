// Package ratchet implements a symmetric key ratchet with an
// out-of-order tolerant receiver. Each step derives a fresh message
// key and discards the previous chain key, so compromise of the
// current state never exposes earlier traffic.
package ratchet
