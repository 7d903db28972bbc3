// Package protocol implements the memcached classic text protocol: command
// framing, reply parsing, and value-payload transport for one connection at
// a time. It drives a pool.SocketConn and uses a codec.Codec to encode
// values being stored; decoding raw bytes back into a typed value is left
// to the caller, since only the caller knows the destination type.
package protocol

// The storage commands are exported because callers pick which one to send
// (Engine.Store takes the command as a parameter); the rest are only ever
// used internally by a single Engine method and stay unexported.
const (
	CmdSet     = "set"
	CmdAdd     = "add"
	CmdReplace = "replace"
)

const (
	cmdGet      = "get"
	cmdDelete   = "delete"
	cmdIncr     = "incr"
	cmdDecr     = "decr"
	cmdStats    = "stats"
	cmdFlushAll = "flush_all"
)

const (
	replyStored    = "STORED"
	replyNotStored = "NOT_STORED"
	replyDeleted   = "DELETED"
	replyNotFound  = "NOT_FOUND"
	replyEnd       = "END"
	replyOK        = "OK"
	replyValue     = "VALUE"
	replyStat      = "STAT"
)
