package archive

// crcTable is the lookup table for the reflected IEEE polynomial.
var crcTable = makeCRCTable(0xEDB88320)

func makeCRCTable(poly uint32) [256]uint32 {
	var t [256]uint32
	for i := range t {
		c := uint32(i)
		for k := 0; k < 8; k++ {
			if c&1 == 1 {
				c = poly ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}

// CRC32 returns the IEEE CRC-32 checksum of data. CRC32(nil) is 0.
func CRC32(data []byte) uint32 {
	return updateCRC(0, data)
}

func updateCRC(crc uint32, data []byte) uint32 {
	crc = ^crc
	for _, b := range data {
		crc = crcTable[byte(crc)^b] ^ (crc >> 8)
	}
	return ^crc
}
