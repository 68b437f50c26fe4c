/*
Package wire implements the length-prefixed framing used on every TCP leg.

# Overview

A frame is a 4-byte big-endian unsigned length followed by exactly that many
payload bytes. Readers always consume the full advertised length, however the
bytes are split across reads, and report ErrFrameTruncated if the peer closes
early.

# Error frames

The length value 0xFFFFFFFF is reserved. It is followed by a regular frame
holding a JSON object:

	{"kind": "DecodeFailure", "message": "..."}

ReadFrame turns it into a *RemoteError, which matches the local sentinel for
its kind through errors.Is.

# Usage

	if err := wire.WriteFrame(conn, data); err != nil {
	    return err
	}
	reply, err := wire.ReadFrame(conn, cfg.Network.MaxFrameSize)
	var remote *wire.RemoteError
	if errors.As(err, &remote) {
	    log.Warn("peer failed", zap.String("kind", string(remote.Kind)))
	}
*/
package wire
