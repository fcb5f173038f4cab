package pixpool

import "github.com/edsrzf/mmap-go"

// FailMapping makes mapping new regions fail with err until restore is called.
func FailMapping(err error) (restore func()) {
	orig := mapRegion
	mapRegion = func(int) (mmap.MMap, error) { return nil, err }
	return func() { mapRegion = orig }
}
