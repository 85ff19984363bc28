// Package codec reads version information out of shell firmware and
// database images and compares it with device-reported and remote versions.
//
// Nothing here performs I/O. The byte layouts are:
//
//	firmware image:  offset 652, 3 bytes: major, minor, patch
//	database image:  offset 0, u16 LE magic 0x4532
//	                 offset 4, u32 LE version
package codec
