/*
Package relay implements the relay server.

# Overview

The relay accepts a client image, converts it to grayscale, re-encodes it as
JPEG and hands it to the scale service over the same framing. The scaled
result is written to the artifact store and the client receives a frame with
the text

	Scaled image available at: <url>

Each connection runs on its own goroutine, so a slow scale call never stalls
Accept. Failures at any step (decode, dial, deadline, scale-side error frame,
persistence) are answered with an error frame instead of a silent close.

# Artifacts

Artifacts are named scaled_image_<unix-seconds>_<ulid>.<ext> and created with
O_EXCL, so two requests in the same second never overwrite each other.
*/
package relay
