package canpack

import (
	"errors"
	"fmt"
	"math"
)

// ErrChecksum is returned when a frame fails checksum verification.
var ErrChecksum = errors.New("canpack: checksum mismatch")

// Signal is a field inside a frame. Bits are numbered little-endian: bit n
// is bit n%8 of byte n/8. The physical value is raw*Factor + Offset.
type Signal struct {
	Name      string
	StartBit  int
	BitLength int
	Factor    float64
	Offset    float64
}

func (s Signal) maxRaw() uint64 {
	return 1<<uint(s.BitLength) - 1
}

func (s Signal) factor() float64 {
	if s.Factor == 0 {
		return 1
	}

	return s.Factor
}

// Message describes one frame layout.
type Message struct {
	Name    string
	Address uint32
	Size    int

	// Checksum puts the frame checksum in the last byte.
	Checksum bool

	Signals []Signal
}

// Signal returns the signal with the given name.
func (m Message) Signal(name string) (Signal, bool) {
	for _, s := range m.Signals {
		if s.Name == name {
			return s, true
		}
	}

	return Signal{}, false
}

// Pack encodes values into a frame payload. Signals missing from values are
// encoded as zero. Values outside a signal's range saturate.
func (m Message) Pack(values map[string]float64) ([]byte, error) {
	data := make([]byte, m.Size)

	for name := range values {
		if _, ok := m.Signal(name); !ok {
			return nil, fmt.Errorf("canpack: %s has no signal %q", m.Name, name)
		}
	}

	for _, s := range m.Signals {
		raw := math.Round((values[s.Name] - s.Offset) / s.factor())
		raw = math.Max(0, math.Min(raw, float64(s.maxRaw())))
		putBits(data, s.StartBit, s.BitLength, uint64(raw))
	}

	if m.Checksum {
		data[m.Size-1] = Checksum(data[:m.Size-1])
	}

	return data, nil
}

// Unpack decodes a frame payload into signal values.
func (m Message) Unpack(data []byte) (map[string]float64, error) {
	if len(data) != m.Size {
		return nil, fmt.Errorf("canpack: %s expects %d bytes, got %d",
			m.Name, m.Size, len(data))
	}

	if m.Checksum && data[m.Size-1] != Checksum(data[:m.Size-1]) {
		return nil, fmt.Errorf("%s: %w", m.Name, ErrChecksum)
	}

	values := make(map[string]float64, len(m.Signals))
	for _, s := range m.Signals {
		raw := getBits(data, s.StartBit, s.BitLength)
		values[s.Name] = float64(raw)*s.factor() + s.Offset
	}

	return values, nil
}

func putBits(data []byte, start, length int, raw uint64) {
	for i := 0; i < length; i++ {
		pos := start + i
		mask := byte(1) << uint(pos%8)

		if raw&(1<<uint(i)) != 0 {
			data[pos/8] |= mask
		} else {
			data[pos/8] &^= mask
		}
	}
}

func getBits(data []byte, start, length int) uint64 {
	var raw uint64

	for i := 0; i < length; i++ {
		pos := start + i
		if data[pos/8]&(1<<uint(pos%8)) != 0 {
			raw |= 1 << uint(i)
		}
	}

	return raw
}
