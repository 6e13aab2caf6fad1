// Package hash provides the CRC32-Castagnoli checksum used for segment
// metadata and for object uploads.
//
//	checksum := hash.CRC32C(payload)
//	header := hash.Base64CRC32C(body) // x-amz-checksum-crc32c
package hash
