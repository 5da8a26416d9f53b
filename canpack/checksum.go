package canpack

// Chrysler frames carry a CRC-8 (SAE J1850: polynomial 0x1D, initial value
// 0xFF, final xor 0xFF) of every byte but the last in the last byte.
const (
	crcPoly    = 0x1D
	crcInit    = 0xFF
	crcXorOut  = 0xFF
	crcMsbMask = 0x80
)

var crcTable = makeCRCTable()

func makeCRCTable() [256]byte {
	var t [256]byte

	for i := range t {
		crc := byte(i)
		for bit := 0; bit < 8; bit++ {
			if crc&crcMsbMask != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}

	return t
}

// Checksum returns the checksum of data.
func Checksum(data []byte) byte {
	crc := byte(crcInit)
	for _, b := range data {
		crc = crcTable[crc^b]
	}

	return crc ^ crcXorOut
}
