// Package main sends one image to the relay and prints its reply.
//
// Usage:
//
//	./client -ip 127.0.0.1 -port 9000 -image photo.jpg
//
// On success the relay answers "Scaled image available at: <url>". Error
// frames are printed with their kind and the exit status is 1.
package main
