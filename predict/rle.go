package predict

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeRLE run-length encodes the non-zero pixels of a row-major w x h
// mask. Pixels are numbered top-to-bottom then left-to-right starting at 1;
// the result is a flat list of (start, length) pairs.
func EncodeRLE(mask []uint8, w, h int) []int {
	var rle []int
	start, length := 0, 0
	pos := 0
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			pos++
			if mask[y*w+x] != 0 {
				if length == 0 {
					start = pos
				}
				length++
				continue
			}
			if length > 0 {
				rle = append(rle, start, length)
				length = 0
			}
		}
	}
	if length > 0 {
		rle = append(rle, start, length)
	}

	return rle
}

// DecodeRLE converts run-length encoding back to a row-major w x h mask
// with 1 for covered pixels.
func DecodeRLE(rle []int, w, h int) ([]uint8, error) {
	if len(rle)%2 != 0 {
		return nil, fmt.Errorf("rle must hold (start, length) pairs. Got %v values", len(rle))
	}

	n := w * h
	mask := make([]uint8, n)
	for i := 0; i < len(rle); i += 2 {
		start, length := rle[i], rle[i+1]
		if start < 1 || length < 0 || start-1+length > n {
			return nil, fmt.Errorf("rle run (%v, %v) out of range for %vx%v mask", start, length, w, h)
		}
		for p := start - 1; p < start-1+length; p++ {
			// p counts down columns
			x, y := p/h, p%h
			mask[y*w+x] = 1
		}
	}

	return mask, nil
}

// RLEString formats run-length encoding as space separated numbers.
func RLEString(rle []int) string {
	parts := make([]string, len(rle))
	for i, v := range rle {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}

// ParseRLE parses the output of RLEString.
func ParseRLE(s string) ([]int, error) {
	fields := strings.Fields(s)
	rle := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid rle value %q: %w", f, err)
		}
		rle[i] = v
	}
	return rle, nil
}
