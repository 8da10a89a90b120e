package driver

// cobsEncode applies consistent overhead byte stuffing. The result holds no
// zero bytes; the caller appends the 0 delimiter.
func cobsEncode(src []byte) []byte {
	dst := make([]byte, 1, len(src)+len(src)/254+2)
	codeIdx, code := 0, byte(1)
	for i, b := range src {
		if b == 0 {
			dst[codeIdx] = code
			codeIdx, code = len(dst), 1
			dst = append(dst, 0)
			continue
		}
		dst = append(dst, b)
		code++
		// a full block only opens a new one when more input follows
		if code == 0xFF && i < len(src)-1 {
			dst[codeIdx] = code
			codeIdx, code = len(dst), 1
			dst = append(dst, 0)
		}
	}
	dst[codeIdx] = code
	return dst
}
