package outbox

import "hash/crc32"

func crcOf(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

func crcValid(data []byte, sum uint32) bool {
	return crcOf(data) == sum
}
