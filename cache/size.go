package cache

import "google.golang.org/protobuf/proto"

// Sizer is implemented by values that know their own footprint. Domain
// records implement it so that the byte budget covers them.
type Sizer interface {
	CacheSize() int64
}

// Size returns the number of bytes v is accounted for in the budget.
// Byte slices and strings count their length, Sizers report themselves and
// protobuf messages count their wire size. Anything else counts as zero,
// which under-counts: such values never trigger eviction on their own.
func Size(v any) int64 {
	var n int64
	switch v := v.(type) {
	case []byte:
		n = int64(len(v))
	case string:
		n = int64(len(v))
	case Sizer:
		n = v.CacheSize()
	case proto.Message:
		n = int64(proto.Size(v))
	}
	return max(n, 0)
}
