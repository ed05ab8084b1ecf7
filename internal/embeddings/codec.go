package embeddings

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes a vector as base64 of little-endian float32s.
func Encode(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// Decode parses the output of Encode. The empty string decodes to nil.
func Decode(s string) ([]float32, error) {
	if s == "" {
		return nil, nil
	}
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of float32s", ErrInvalidEncoding, len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
