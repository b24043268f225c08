package engine

import (
	"strconv"
	"sync/atomic"
)

var instances atomic.Uint64

// NextInstanceID returns a new process-wide instance id, starting at 1
func NextInstanceID() uint64 {
	return instances.Add(1)
}

// InstanceUUID is the identity an instance registers with
func InstanceUUID(id uint64) string {
	return "skipper-" + strconv.FormatUint(id, 10)
}
