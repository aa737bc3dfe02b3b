package internal

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var localSeq atomic.Uint64

// newLocalID returns a process-unique identifier for an in-memory entity.
// The counter guarantees ids are never reused within a process.
func newLocalID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, localSeq.Add(1))
}

// NewBucketToken generates an opaque, globally unique remote session key.
// The backend creates the bucket lazily on the first persisted exchange.
func NewBucketToken() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + shortRandom()
}

// newMessageID is used for locally created messages and remote records without an _id
func newMessageID() string {
	return "msg-" + uuid.NewString()
}

// newUploadID derives an upload id from the file identity plus a random
// disambiguator so the same file staged twice yields two entries.
func newUploadID(f File) string {
	return fmt.Sprintf("%s-%d-%d-%s", f.Name, f.Size, f.ModTime.UnixMilli(), shortRandom())
}

func shortRandom() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
