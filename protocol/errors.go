package protocol

import "errors"

// ErrNotFound is returned by Delete, Incr, and Decr when the server replies
// NOT_FOUND. Get reports an absent key with found == false instead.
var ErrNotFound = errors.New("protocol: not found")

// ErrNotStored is returned by Store when the server replies NOT_STORED.
var ErrNotStored = errors.New("protocol: not stored")

// ErrProtocolError is returned when a server reply doesn't match the
// expected grammar for the command that produced it.
var ErrProtocolError = errors.New("protocol: unexpected server reply")
