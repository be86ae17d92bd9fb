// Package ports derives the network ports a test script binds from its port
// seed. Test scripts compute the same values; the runner only uses them for
// diagnostics.
package ports

import (
	"fmt"
	"os"
	"strconv"
)

const (
	// MaxNodes is the highest node index a single test may use.
	MaxNodes = 20

	// PortRange is the width of the p2p range; rpc ports follow right after.
	PortRange = 5000

	// DefaultPortMin is used when TEST_RUNNER_PORT_MIN is unset.
	DefaultPortMin = 11000
)

// PortMin returns the lowest port, honoring TEST_RUNNER_PORT_MIN.
func PortMin() int {
	if v := os.Getenv("TEST_RUNNER_PORT_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return DefaultPortMin
}

func offset(seed int) int {
	return (MaxNodes * seed) % (PortRange - 1 - MaxNodes)
}

// P2P returns the p2p port of node n for the given seed.
func P2P(n, seed int) (int, error) {
	if n < 0 || n > MaxNodes {
		return 0, fmt.Errorf("node index %d out of range [0, %d]", n, MaxNodes)
	}
	return PortMin() + n + offset(seed), nil
}

// RPC returns the rpc port of node n for the given seed.
func RPC(n, seed int) (int, error) {
	if n < 0 || n > MaxNodes {
		return 0, fmt.Errorf("node index %d out of range [0, %d]", n, MaxNodes)
	}
	return PortMin() + PortRange + n + offset(seed), nil
}

// Pair holds the ports of one node.
type Pair struct {
	Node int `json:"node"`
	P2P  int `json:"p2p"`
	RPC  int `json:"rpc"`
}

// Table returns the ports of nodes 0..nodes-1 for seed.
func Table(seed, nodes int) ([]Pair, error) {
	pairs := make([]Pair, 0, nodes)
	for n := 0; n < nodes; n++ {
		p2p, err := P2P(n, seed)
		if err != nil {
			return nil, err
		}
		rpc, err := RPC(n, seed)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Node: n, P2P: p2p, RPC: rpc})
	}
	return pairs, nil
}
