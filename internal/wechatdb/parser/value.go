package parser

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

	// DecodeAll 可并发调用
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

const maxLZ4Output = 4 << 20

// nullSentinels 这些字面量等同于空值
var nullSentinels = map[string]struct{}{
	"null":      {},
	"undefined": {},
	"<nil>":     {},
}

// Text 把任意单元格值转换为去除首尾空白的字符串；nil、空串和 null 字面量返回 false
func Text(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s = t
	case []byte:
		s = decodeBlob(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case int:
		s = strconv.Itoa(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	case time.Time:
		s = t.Format(time.RFC3339)
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if _, ok := nullSentinels[strings.ToLower(s)]; ok {
		return "", false
	}
	return s, true
}

// decodeBlob v4 的 message_content 使用 zstd 帧压缩
func decodeBlob(b []byte) string {
	if bytes.HasPrefix(b, zstdMagic) {
		out, err := zstdDecoder.DecodeAll(b, nil)
		if err == nil {
			return string(out)
		}
	}
	return string(b)
}

// decodeLZ4 v3 的 CompressContent 是不带长度头的 lz4 block
func decodeLZ4(v any) (string, bool) {
	b, ok := v.([]byte)
	if !ok || len(b) == 0 {
		return "", false
	}
	size := len(b) * 4
	if size < 256 {
		size = 256
	}
	for size <= maxLZ4Output {
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(b, dst)
		if err == nil {
			s := strings.TrimSpace(strings.TrimRight(string(dst[:n]), "\x00"))
			return s, s != ""
		}
		if err != lz4.ErrInvalidSourceShortBuffer {
			return "", false
		}
		size *= 2
	}
	return "", false
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func truthy(v any) bool {
	s, ok := Text(v)
	if !ok {
		return false
	}
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true
	}
	n, ok := parseInt(s)
	return ok && n != 0
}

// MillisecondThreshold 大于等于该值的时间戳按毫秒处理，否则按秒处理
const MillisecondThreshold = 1e11

// ParseTimestamp 把秒或毫秒时间戳归一化为时间点，无法解析时返回 false
func ParseTimestamp(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, !t.IsZero()
	}
	s, ok := Text(v)
	if !ok {
		return time.Time{}, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
		return time.Time{}, false
	}
	if f >= MillisecondThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}
