package wire

// CRC16 computes the checksum used by the bridge firmware: reflected
// polynomial 0xA001 (CRC-16/MODBUS), initial value 0xFFFF, no final XOR.
// Table-free on purpose; the firmware computes it the same way and frames
// are small enough that a lookup table buys nothing.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
