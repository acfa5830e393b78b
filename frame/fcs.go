package frame

// crcTable is the reversed CRC-8 table for the polynomial x^8+x^2+x+1 [TS 07.10 B.3.5].
var crcTable [256]byte

func init() {
	for i := range crcTable {
		c := byte(i)
		for b := 0; b < 8; b++ {
			if c&0x01 != 0 {
				c = (c >> 1) ^ 0xe0
			} else {
				c >>= 1
			}
		}
		crcTable[i] = c
	}
}

func crc(b []byte) byte {
	c := byte(0xff)
	for _, v := range b {
		c = crcTable[c^v]
	}
	return c
}

// FCS computes the frame check sequence over b.
func FCS(b []byte) byte {
	return 0xff - crc(b)
}

// CheckFCS reports whether fcs is the valid check sequence for b.
func CheckFCS(b []byte, fcs byte) bool {
	// Running the received FCS through the CRC leaves the fixed residue 0xcf.
	return crcTable[crc(b)^fcs] == 0xcf
}

// FCSCoverage returns the number of leading frame bytes the FCS covers.
// UIH frames exclude the length field from the check.
func FCSCoverage(t Type) int {
	if t == UIH {
		return 2
	}
	return 3
}
