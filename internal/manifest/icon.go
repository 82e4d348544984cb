package manifest

// PlaceholderIconPNG is a minimal valid 1x1 grayscale PNG, stored
// (uncompressed) via a zlib level-0 block, used as the fallback asset
// served from both icon endpoints when no artwork was supplied.
var PlaceholderIconPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x00, 0x00, 0x00, 0x00, 0x3a, 0x7e, 0x9b,
	0x55, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x01, 0x01, 0x02, 0x00, 0xfd, 0xff,
	0x00, 0x00, 0x00, 0x02, 0x00, 0x01, 0x7e, 0x05,
	0x0d, 0xd2, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45,
	0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
