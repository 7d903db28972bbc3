package protocol

// Item is a raw value as read off the wire: undecoded bytes plus the flag
// word that describes how they were encoded. Decoding into a typed value is
// the caller's job, via codec.Codec.Decode, since only the caller knows the
// destination type.
type Item struct {
	Data  []byte
	Flags uint32
}
