// Package numpress implements the MS-Numpress transforms used for binary
// data arrays in mzML files:
//
//	MS:1002312 linear prediction (m/z and retention time arrays)
//	MS:1002313 positive integer (ion counts)
//	MS:1002314 short logged float (intensities)
//
// The byte layout is the one of the reference implementation, so arrays
// written by other tools decode here and vice versa. Multi-nibble integers
// use the half-byte encoding: one head nibble followed by the significant
// nibbles of the value, least significant first.
package numpress

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrCorrupt means the encoded data ended in the middle of a value or
	// is too short to hold its header
	ErrCorrupt = errors.New("numpress: corrupt input data")
	// ErrOverflow means a value cannot be represented with the chosen
	// fixed point
	ErrOverflow = errors.New("numpress: value out of range")
	// ErrShortBuffer means the result slice cannot hold all decoded values
	ErrShortBuffer = errors.New("numpress: result buffer too small")
)

// Bytes used by the big-endian fixed point header of linear and slof data
const fixedPointSize = 8

func encodeFixedPoint(fixedPoint float64, dst []byte) {
	binary.BigEndian.PutUint64(dst, math.Float64bits(fixedPoint))
}

func decodeFixedPoint(src []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(src))
}

// encodeInt appends the half-byte representation of x to hb.
// Each element of hb holds one nibble.
func encodeInt(x uint32, hb []byte) []byte {
	const mask = uint32(0xf0000000)
	switch x & mask {
	case 0:
		l := 8
		for i := 0; i < 8; i++ {
			if x&(mask>>(4*i)) != 0 {
				l = i
				break
			}
		}
		hb = append(hb, byte(l))
		for i := l; i < 8; i++ {
			hb = append(hb, byte(x>>(4*(i-l)))&0xf)
		}
	case mask:
		l := 7
		for i := 0; i < 8; i++ {
			m := mask >> (4 * i)
			if x&m != m {
				l = i
				break
			}
		}
		hb = append(hb, byte(l+8))
		for i := l; i < 8; i++ {
			hb = append(hb, byte(x>>(4*(i-l)))&0xf)
		}
	default:
		hb = append(hb, 0)
		for i := 0; i < 8; i++ {
			hb = append(hb, byte(x>>(4*i))&0xf)
		}
	}
	return hb
}

// halfBytePacker packs nibbles two per byte into dst.
type halfBytePacker struct {
	dst     []byte
	pending []byte
}

func (p *halfBytePacker) put(x uint32) {
	p.pending = encodeInt(x, p.pending)
	i := 1
	for ; i < len(p.pending); i += 2 {
		p.dst = append(p.dst, p.pending[i-1]<<4|p.pending[i]&0xf)
	}
	if len(p.pending)%2 != 0 {
		p.pending[0] = p.pending[len(p.pending)-1]
		p.pending = p.pending[:1]
	} else {
		p.pending = p.pending[:0]
	}
}

func (p *halfBytePacker) flush() []byte {
	if len(p.pending) == 1 {
		p.dst = append(p.dst, p.pending[0]<<4)
		p.pending = p.pending[:0]
	}
	return p.dst
}

// halfByteReader reads nibbles from data, high nibble first.
type halfByteReader struct {
	data []byte
	di   int
	half bool
}

func (r *halfByteReader) more() bool {
	if r.di >= len(r.data) {
		return false
	}
	// A trailing zero nibble in the last byte is padding
	if r.di == len(r.data)-1 && r.half && r.data[r.di]&0xf == 0 {
		return false
	}
	return true
}

func (r *halfByteReader) next() (byte, bool) {
	if r.di >= len(r.data) {
		return 0, false
	}
	var hb byte
	if !r.half {
		hb = r.data[r.di] >> 4
	} else {
		hb = r.data[r.di] & 0xf
		r.di++
	}
	r.half = !r.half
	return hb, true
}

func (r *halfByteReader) decodeInt() (uint32, bool) {
	head, ok := r.next()
	if !ok {
		return 0, false
	}
	var res uint32
	n := int(head)
	if head > 8 {
		// leading 0xf nibbles
		n = int(head) - 8
		for i := 0; i < n; i++ {
			res |= uint32(0xf0000000) >> (4 * i)
		}
	}
	for i := n; i < 8; i++ {
		hb, ok := r.next()
		if !ok {
			return 0, false
		}
		res |= uint32(hb) << (4 * (i - n))
	}
	return res, true
}

// OptimalLinearFixedPoint returns the largest fixed point that encodes
// data with linear prediction without overflowing the 32-bit residuals.
func OptimalLinearFixedPoint(data []float64) float64 {
	switch len(data) {
	case 0:
		return 0
	case 1:
		return math.Floor(0xFFFFFFFF / data[0])
	}
	maxDouble := math.Max(data[0], data[1])
	for i := 2; i < len(data); i++ {
		extrapol := data[i-1] + (data[i-1] - data[i-2])
		diff := data[i] - extrapol
		maxDouble = math.Max(maxDouble, math.Ceil(math.Abs(diff)+1))
	}
	return math.Floor(0x7FFFFFFF / maxDouble)
}

// LinearEncodedBound is the worst case size of EncodeLinear output for n values.
func LinearEncodedBound(n int) int {
	return fixedPointSize + 5*n
}

// LinearDecodedBound is the maximum number of values that size bytes of
// linear prediction data can hold.
func LinearDecodedBound(size int) int {
	if size <= fixedPointSize+4 {
		if size > fixedPointSize {
			return 1
		}
		return 0
	}
	if size < fixedPointSize+8 {
		return 2
	}
	return 2 + 2*(size-fixedPointSize-8)
}

// EncodeLinear encodes data with linear prediction using fixedPoint.
// The first two values are stored as 32-bit integers; every following
// value is stored as the residual against the extrapolation of the two
// previous fixed point values, which equal the values the decoder sees.
func EncodeLinear(data []float64, fixedPoint float64) ([]byte, error) {
	result := make([]byte, fixedPointSize, LinearEncodedBound(len(data)))
	encodeFixedPoint(fixedPoint, result)
	if len(data) == 0 {
		return result, nil
	}

	var ints [3]int64
	var err error
	if ints[1], err = toFixed(data[0], fixedPoint); err != nil {
		return nil, err
	}
	result = binary.LittleEndian.AppendUint32(result, uint32(ints[1]))
	if len(data) == 1 {
		return result, nil
	}
	if ints[2], err = toFixed(data[1], fixedPoint); err != nil {
		return nil, err
	}
	result = binary.LittleEndian.AppendUint32(result, uint32(ints[2]))

	p := halfBytePacker{dst: result, pending: make([]byte, 0, 10)}
	for i := 2; i < len(data); i++ {
		ints[0] = ints[1]
		ints[1] = ints[2]
		if ints[2], err = toFixed(data[i], fixedPoint); err != nil {
			return nil, err
		}
		extrapol := ints[1] + (ints[1] - ints[0])
		diff := ints[2] - extrapol
		if diff > math.MaxInt32 || diff < math.MinInt32 {
			return nil, ErrOverflow
		}
		p.put(uint32(int32(diff)))
	}
	result = p.flush()
	return result[:len(result):len(result)], nil
}

func toFixed(v float64, fixedPoint float64) (int64, error) {
	x := v*fixedPoint + 0.5
	if math.IsNaN(x) || x > math.MaxInt64 || x < math.MinInt64 {
		return 0, ErrOverflow
	}
	return int64(x), nil
}

// DecodeLinear decodes linear prediction data into result and returns the
// number of values written. On malformed input it returns -1.
func DecodeLinear(data []byte, result []float64) (int, error) {
	if len(data) == fixedPointSize {
		return 0, nil
	}
	if len(data) < fixedPointSize+4 {
		return -1, ErrCorrupt
	}
	fixedPoint := decodeFixedPoint(data)

	var ints [3]int64
	ints[1] = int64(binary.LittleEndian.Uint32(data[fixedPointSize:]))
	if len(result) < 1 {
		return -1, ErrShortBuffer
	}
	result[0] = float64(ints[1]) / fixedPoint
	if len(data) == fixedPointSize+4 {
		return 1, nil
	}
	if len(data) < fixedPointSize+8 {
		return -1, ErrCorrupt
	}
	ints[2] = int64(binary.LittleEndian.Uint32(data[fixedPointSize+4:]))
	if len(result) < 2 {
		return -1, ErrShortBuffer
	}
	result[1] = float64(ints[2]) / fixedPoint

	ri := 2
	r := halfByteReader{data: data[fixedPointSize+8:]}
	for r.more() {
		buff, ok := r.decodeInt()
		if !ok {
			return -1, ErrCorrupt
		}
		if ri >= len(result) {
			return -1, ErrShortBuffer
		}
		ints[0] = ints[1]
		ints[1] = ints[2]
		extrapol := ints[1] + (ints[1] - ints[0])
		y := extrapol + int64(int32(buff))
		result[ri] = float64(y) / fixedPoint
		ri++
		ints[2] = y
	}
	return ri, nil
}

// PicEncodedBound is the worst case size of EncodePic output for n values.
func PicEncodedBound(n int) int {
	return 5 * n
}

// PicDecodedBound is the maximum number of values that size bytes of
// positive integer data can hold.
func PicDecodedBound(size int) int {
	return 2 * size
}

// EncodePic rounds each value to the nearest non-negative integer and
// stores it with the half-byte integer encoding. Values are stored as is,
// not as deltas, as the reference MS-Numpress codec does.
func EncodePic(data []float64) ([]byte, error) {
	p := halfBytePacker{
		dst:     make([]byte, 0, PicEncodedBound(len(data))),
		pending: make([]byte, 0, 10),
	}
	for _, v := range data {
		if math.IsNaN(v) || v+0.5 > math.MaxInt32 || v < -0.5 {
			return nil, ErrOverflow
		}
		p.put(uint32(v + 0.5))
	}
	result := p.flush()
	return result[:len(result):len(result)], nil
}

// DecodePic decodes positive integer data into result and returns the
// number of values written. On malformed input it returns -1.
func DecodePic(data []byte, result []float64) (int, error) {
	ri := 0
	r := halfByteReader{data: data}
	for r.more() {
		x, ok := r.decodeInt()
		if !ok {
			return -1, ErrCorrupt
		}
		if ri >= len(result) {
			return -1, ErrShortBuffer
		}
		result[ri] = float64(x)
		ri++
	}
	return ri, nil
}

// OptimalSlofFixedPoint returns the fixed point that maps the largest
// log(x+1) of data onto the full 16-bit range.
func OptimalSlofFixedPoint(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	maxDouble := 1.0
	for _, v := range data {
		maxDouble = math.Max(maxDouble, math.Log(v+1))
	}
	return math.Floor(0xFFFF / maxDouble)
}

// SlofEncodedBound is the size of EncodeSlof output for n values.
func SlofEncodedBound(n int) int {
	return fixedPointSize + 2*n
}

// SlofDecodedBound is the number of values that size bytes of short
// logged float data hold.
func SlofDecodedBound(size int) int {
	if size < fixedPointSize {
		return 0
	}
	return (size - fixedPointSize) / 2
}

// EncodeSlof stores each value as the 16-bit unsigned integer
// round(log(x+1) * fixedPoint), little endian.
func EncodeSlof(data []float64, fixedPoint float64) ([]byte, error) {
	result := make([]byte, fixedPointSize, SlofEncodedBound(len(data)))
	encodeFixedPoint(fixedPoint, result)
	for _, v := range data {
		temp := math.Log(v+1) * fixedPoint
		if math.IsNaN(temp) || temp < 0 || temp > math.MaxUint16 {
			return nil, ErrOverflow
		}
		result = binary.LittleEndian.AppendUint16(result, uint16(temp+0.5))
	}
	return result, nil
}

// DecodeSlof decodes short logged float data into result and returns the
// number of values written. On malformed input it returns -1.
func DecodeSlof(data []byte, result []float64) (int, error) {
	if len(data) < fixedPointSize || (len(data)-fixedPointSize)%2 != 0 {
		return -1, ErrCorrupt
	}
	fixedPoint := decodeFixedPoint(data)
	ri := 0
	for i := fixedPointSize; i < len(data); i += 2 {
		if ri >= len(result) {
			return -1, ErrShortBuffer
		}
		x := binary.LittleEndian.Uint16(data[i:])
		result[ri] = math.Exp(float64(x)/fixedPoint) - 1
		ri++
	}
	return ri, nil
}
