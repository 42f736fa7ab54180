package pixel

// Colours travel through the pipeline as 0xAARRGGBB words, the order
// B8G8R8A8 bytes have in memory.

// WriteB8G8R8A8 stores one 0xAARRGGBB colour into dst using format f.
// dst must hold at least f.BytesPerPixel() bytes. Compressed formats
// are ignored.
func WriteB8G8R8A8(dst []byte, f Format, argb uint32) {
	a := byte(argb >> 24)
	r := byte(argb >> 16)
	g := byte(argb >> 8)
	b := byte(argb)

	switch f {
	case A8R8G8B8:
		dst[0], dst[1], dst[2], dst[3] = b, g, r, a
	case X8R8G8B8:
		dst[0], dst[1], dst[2], dst[3] = b, g, r, 0xff
	case R8G8B8:
		dst[0], dst[1], dst[2] = b, g, r
	case R5G6B5:
		put16(dst, uint16(r>>3)<<11|uint16(g>>2)<<5|uint16(b>>3))
	case X1R5G5B5:
		put16(dst, 0x8000|uint16(r>>3)<<10|uint16(g>>3)<<5|uint16(b>>3))
	case A1R5G5B5:
		put16(dst, uint16(a>>7)<<15|uint16(r>>3)<<10|uint16(g>>3)<<5|uint16(b>>3))
	case A4R4G4B4:
		put16(dst, uint16(a>>4)<<12|uint16(r>>4)<<8|uint16(g>>4)<<4|uint16(b>>4))
	case A8:
		dst[0] = a
	case L8:
		dst[0] = luminance(r, g, b)
	}
}

// ReadB8G8R8A8 loads one pixel of format f from src as 0xAARRGGBB.
// Formats without alpha read back opaque.
func ReadB8G8R8A8(src []byte, f Format) uint32 {
	switch f {
	case A8R8G8B8:
		return pack(src[3], src[2], src[1], src[0])
	case X8R8G8B8, R8G8B8:
		return pack(0xff, src[2], src[1], src[0])
	case R5G6B5:
		v := get16(src)
		return pack(0xff, expand5(v>>11), expand6(v>>5), expand5(v))
	case X1R5G5B5:
		v := get16(src)
		return pack(0xff, expand5(v>>10), expand5(v>>5), expand5(v))
	case A1R5G5B5:
		v := get16(src)
		var a byte
		if v&0x8000 != 0 {
			a = 0xff
		}
		return pack(a, expand5(v>>10), expand5(v>>5), expand5(v))
	case A4R4G4B4:
		v := get16(src)
		return pack(expand4(v>>12), expand4(v>>8), expand4(v>>4), expand4(v))
	case A8:
		return uint32(src[0]) << 24
	case L8:
		return pack(0xff, src[0], src[0], src[0])
	}
	return 0
}

func pack(a, r, g, b byte) uint32 {
	return uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func put16(dst []byte, v uint16) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
}

func get16(src []byte) uint16 {
	return uint16(src[0]) | uint16(src[1])<<8
}

func expand4(v uint16) byte {
	v &= 0xf
	return byte(v<<4 | v)
}

func expand5(v uint16) byte {
	v &= 0x1f
	return byte(v<<3 | v>>2)
}

func expand6(v uint16) byte {
	v &= 0x3f
	return byte(v<<2 | v>>4)
}

// ITU-R 601 weights scaled to 256.
func luminance(r, g, b byte) byte {
	return byte((77*uint32(r) + 150*uint32(g) + 29*uint32(b)) >> 8)
}
