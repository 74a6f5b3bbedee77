// ABOUTME: Audio item type carried through the relay pipeline
// ABOUTME: Bounded byte payload plus sample format tag
package audio

// MaxItemBytes bounds the payload of a single Item. Mesh datagrams top out
// well below this; the bound exists so ring slots have a fixed size.
const MaxItemBytes = 512

// Format tags how an Item's bytes must be interpreted before they reach a
// phone link.
type Format uint8

const (
	// RawPcm16 is little-endian signed 16-bit mono PCM, forwarded verbatim.
	RawPcm16 Format = iota
	// RawPcm8NeedsUpconvert is unsigned 8-bit PCM that must be expanded to
	// 16-bit before notification.
	RawPcm8NeedsUpconvert
	// RawUlaw is 8-bit u-law companded PCM that must be expanded to 16-bit
	// before notification.
	RawUlaw
)

// Item is one unit of audio handed between transports. Items are copied into
// ring slots on push and copied out on pop; nothing shares the backing array.
type Item struct {
	Data   [MaxItemBytes]byte
	Length int
	Format Format

	// Sequence and Chunk identify the mesh frame the item arrived in, so the
	// consumer can acknowledge it. Zero for items that came from a phone link.
	Sequence uint32
	Chunk    uint16
}

// NewItem copies up to MaxItemBytes of data into a fresh Item.
func NewItem(data []byte, format Format) Item {
	var it Item
	it.Length = copy(it.Data[:], data)
	it.Format = format
	return it
}

// Bytes returns the valid slice of the item's payload.
func (it *Item) Bytes() []byte {
	return it.Data[:it.Length]
}
