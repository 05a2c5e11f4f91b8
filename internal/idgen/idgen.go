// Package idgen produces unique, prefixed document numbers.
package idgen

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Sequence issues gap-free numbers per prefix, e.g. IND-000001. Counters live in
// process memory.
type Sequence struct {
	mu       sync.Mutex
	width    int
	counters map[string]int64
}

// NewSequence returns a generator padding numbers to width digits.
func NewSequence(width int) *Sequence {
	if width <= 0 {
		width = 6
	}
	return &Sequence{width: width, counters: make(map[string]int64)}
}

// Next returns the next number for prefix.
func (s *Sequence) Next(ctx context.Context, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[prefix]++
	return fmt.Sprintf("%s-%0*d", prefix, s.width, s.counters[prefix]), nil
}

// Snowflake issues time-ordered numbers that stay unique across nodes.
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake creates a generator for the given node id (0-1023).
func NewSnowflake(nodeID int64) (*Snowflake, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("idgen: snowflake node %d: %w", nodeID, err)
	}
	return &Snowflake{node: node}, nil
}

// Next returns prefix-<snowflake id>.
func (s *Snowflake) Next(ctx context.Context, prefix string) (string, error) {
	return fmt.Sprintf("%s-%d", prefix, s.node.Generate().Int64()), nil
}
