// Package compression shrinks disk images for storage and distribution.
//
// Freshly built images are mostly filler: unused sectors are all zeros (or all
// 0xFF on some formats), so a 32 MiB ProDOS hard disk image with a handful of
// files is almost entirely one repeated byte. Run-length encoding the raw image
// first and then gzipping the result gives far better ratios than gzip alone.
//
// The run-length encoding is RLE8, the scheme used by the Microsoft BMP file
// format: if a byte B occurs N times where N >= 2, B is written twice, followed
// by a third (unsigned) byte indicating how many additional times B occurred.
// For example:
//
//	WXXXXXXXXXXXXXXXYZZ
//	W XX 13 Y ZZ 0
//
// One group describes at most 257 bytes; longer runs are split, so a run of 300
// "X" becomes `XX 255 XX 41`. Since a byte is its own escape sequence, a byte
// occurring exactly twice costs three bytes.
package compression
