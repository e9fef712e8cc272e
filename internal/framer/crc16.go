// internal/framer/crc16.go
// CRC16 used by the HDLC framer (spec.md §4.2): polynomial 0x8408, init 0,
// reflected. Grounded on the teacher's CalculateCRC16 in usb_device.go,
// which also computes a reflected CRC16 via a precomputed lookup table
// rather than a bit-by-bit loop; this keeps that table-driven shape with a
// single 256-entry table (the teacher splits hi/lo into two tables for its
// own polynomial — not needed for the single-polynomial case here).
package framer

var crc16Table [256]uint16

func init() {
	const poly = 0x8408
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for b := 0; b < 8; b++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		crc16Table[i] = crc
	}
}

// CRC16 computes the reflected CRC16 (poly 0x8408, init 0) over data, the
// polynomial spec.md §4.2 names for both SPRD-Diag and SPRD-BootROM framing.
func CRC16(data []byte) uint16 {
	crc := uint16(0)
	for _, b := range data {
		crc = (crc >> 8) ^ crc16Table[byte(crc)^b]
	}
	return crc
}
