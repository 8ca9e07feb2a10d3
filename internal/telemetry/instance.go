package telemetry

import (
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

var (
	instanceOnce sync.Once
	instanceID   string
)

// InstanceID identifies this process (hostname, pid and a random suffix). It
// is stable for the lifetime of the process.
func InstanceID() string {
	instanceOnce.Do(func() {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "unknown"
		}

		instanceID = host + "-" + strconv.Itoa(os.Getpid()) + "-" + uuid.NewString()[:8]
	})

	return instanceID
}
