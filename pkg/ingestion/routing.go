package ingestion

import (
	"hash/fnv"
	"time"
)

// defaultTimeBucket is the routing time-bucket width from spec.md §4.5.
const defaultTimeBucket = 5 * time.Minute

// TimeBucket floors a device timestamp onto the routing time-bucket
// boundary (spec.md §4.5: "floor(ts_ns / 5 min)").
func TimeBucket(tsNs int64, bucketWidth time.Duration) int64 {
	if bucketWidth <= 0 {
		bucketWidth = defaultTimeBucket
	}
	width := bucketWidth.Nanoseconds()
	return tsNs / width
}

// PartitionFor picks a stable output partition for a device within a
// time bucket (spec.md §4.5: "hash(device_id || floor(ts_ns / 5 min))"),
// so a device's stream stays on one consumer partition within a bucket
// but rebalances across buckets. fnv-1a is used rather than a
// cryptographic hash: this is load distribution, not an integrity or
// security boundary, and fnv is the idiomatic Go choice for non-crypto
// partition hashing (mirrors how Kafka-style Go clients key partitions).
func PartitionFor(deviceID string, tsNs int64, bucketWidth time.Duration, numPartitions int) int {
	if numPartitions <= 0 {
		return 0
	}
	bucket := TimeBucket(tsNs, bucketWidth)

	h := fnv.New32a()
	h.Write([]byte(deviceID))
	h.Write([]byte{
		byte(bucket), byte(bucket >> 8), byte(bucket >> 16), byte(bucket >> 24),
		byte(bucket >> 32), byte(bucket >> 40), byte(bucket >> 48), byte(bucket >> 56),
	})
	return int(h.Sum32()) % numPartitions
}

// TopicFor names the durable log topic for a data type (spec.md §4.5:
// "publish ... per data_type").
func TopicFor(streamPrefix string, dataType string) string {
	return streamPrefix + ".samples." + dataType
}
