// Package scatter implements the dimensional scatter transform.
//
// The route path uses the minimal transform: a one-byte dimension tag
// prepended to the payload, recoverable by the receiver with no shared
// state. On top of that, the package offers an opt-in richer layer:
// LZ4 shard compression, Reed-Solomon scattering of one payload across
// several dimensions with parity (so the loss of up to `parity`
// dimensions is recoverable), Merkle verification of the shard set,
// and a non-blocking per-dimension lane dispatcher.
package scatter
