package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string. KSUIDs embed a
// second-resolution timestamp followed by 128 random bits, so two records
// created in the same millisecond still get distinct, sortable ids.
func NewKSUID() string {
	return ksuid.New().String()
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewSnowflakeID generates a snowflake ID string using a node ID from
// the environment variable SNOWFLAKE_NODE. If node setup fails it falls
// back to generating a KSUID string to ensure a unique ID is returned.
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeID = n
			}
		}
		node, _ = snowflake.NewNode(nodeID)
	})
	if node == nil {
		return NewKSUID()
	}
	return node.Generate().String()
}

// NewSnowflakeIDWithNode generates a snowflake ID string using the provided node ID.
// If the node cannot be initialized, it falls back to a KSUID string.
func NewSnowflakeIDWithNode(nodeID int64) string {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return NewKSUID()
	}
	return n.Generate().String()
}
