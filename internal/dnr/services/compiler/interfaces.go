package compiler

// BloomFilter is the minimal interface the compiler needs for its dedup prefilter.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory constructs filters sized for a capacity and false-positive rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}
