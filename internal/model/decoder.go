package model

// Decoder turns one capture file into an ordered stream of packet records.
type Decoder interface {
	// Decode sends the file's records to out in arrival order and closes
	// out before returning, whatever the outcome. It returns the number of
	// undecodable records it skipped; a non-nil error means the file itself
	// could not be decoded and anything already received must be discarded.
	Decode(path string, out chan<- *PacketRecord) (skipped int, err error)
}
