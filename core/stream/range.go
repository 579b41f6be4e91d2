package stream

import (
	"fmt"
	"strconv"
	"strings"

	"mediacore/model"
)

// ByteRange 是一次请求内解析出的闭区间 [Start, End]，满足 0 <= Start <= End < Total
type ByteRange struct {
	Start int64
	End   int64
	Total int64
}

// Length 返回区间字节数
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the value of the Content-Range response header.
func (r ByteRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// UnsatisfiedContentRange is the Content-Range value sent with a 416.
func UnsatisfiedContentRange(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}

// ResolveRange parses a single-range Range header against total.
//
// A nil range with a nil error means the whole resource is served: the header
// is absent, malformed, or asks for multiple ranges. model.ErrRangeNotSatisfiable
// is returned when the start lies at or beyond total. An end beyond the
// resource is clamped to the last byte.
func ResolveRange(header string, total int64) (*ByteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	if !strings.HasPrefix(strings.ToLower(header), "bytes=") {
		return nil, nil
	}

	set := strings.TrimSpace(header[len("bytes="):])
	if set == "" || strings.Contains(set, ",") {
		return nil, nil
	}

	startStr, endStr, ok := strings.Cut(set, "-")
	if !ok {
		return nil, nil
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	// suffix form: bytes=-N
	if startStr == "" {
		if endStr == "" {
			return nil, nil
		}
		suffix, ok := parsePos(endStr)
		if !ok {
			return nil, nil
		}
		if suffix == 0 || total <= 0 {
			return nil, model.ErrRangeNotSatisfiable
		}
		if suffix > total {
			suffix = total
		}
		return &ByteRange{Start: total - suffix, End: total - 1, Total: total}, nil
	}

	start, ok := parsePos(startStr)
	if !ok {
		return nil, nil
	}

	end := total - 1
	if endStr != "" {
		if end, ok = parsePos(endStr); !ok {
			return nil, nil
		}
	}

	if start >= total {
		return nil, model.ErrRangeNotSatisfiable
	}
	if end >= total {
		end = total - 1
	}
	if start > end {
		return nil, nil
	}
	return &ByteRange{Start: start, End: end, Total: total}, nil
}

// parsePos accepts only 1*DIGIT; strconv alone would also take a sign.
func parsePos(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
