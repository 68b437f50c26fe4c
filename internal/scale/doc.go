/*
Package scale implements the scale service.

Every accepted connection gets its own goroutine. The service reads exactly one
frame under a read deadline, decodes the image, resizes it by the configured
factor with nearest-neighbour sampling, re-encodes it in the decoded format and
writes one frame back. Any failure is answered with an error frame before the
connection closes:

  - undecodable bytes: DecodeFailure
  - peer too slow: Timeout
  - peer closed mid-frame: FrameTruncated
*/
package scale
