package tool

import (
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// AdvisoryLockKey maps a string key onto the int64 space of pg_advisory_xact_lock.
func AdvisoryLockKey(namespace, key string) int64 {
	d := xxhash.New()
	_, _ = d.WriteString(namespace)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(key)
	return int64(d.Sum64())
}
