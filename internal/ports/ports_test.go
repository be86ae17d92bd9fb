package ports

import "testing"

func TestPortsForSeed(t *testing.T) {
	t.Setenv("TEST_RUNNER_PORT_MIN", "")

	tests := []struct {
		name    string
		node    int
		seed    int
		wantP2P int
		wantRPC int
	}{
		{"seed 0 node 0", 0, 0, 11000, 16000},
		{"seed 1 node 0", 0, 1, 11020, 16020},
		{"seed 2 node 3", 3, 2, 11043, 16043},
		// offset wraps at PortRange-1-MaxNodes = 4979
		{"seed 249 wraps", 0, 249, 11000 + (20*249)%4979, 16000 + (20*249)%4979},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p2p, err := P2P(tt.node, tt.seed)
			if err != nil {
				t.Fatalf("P2P: %v", err)
			}
			rpc, err := RPC(tt.node, tt.seed)
			if err != nil {
				t.Fatalf("RPC: %v", err)
			}
			if p2p != tt.wantP2P || rpc != tt.wantRPC {
				t.Errorf("got p2p=%d rpc=%d, want p2p=%d rpc=%d", p2p, rpc, tt.wantP2P, tt.wantRPC)
			}
		})
	}
}

func TestPortMinFromEnv(t *testing.T) {
	t.Setenv("TEST_RUNNER_PORT_MIN", "20000")
	p2p, err := P2P(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p2p != 20001 {
		t.Errorf("got %d, want 20001", p2p)
	}
}

func TestNodeOutOfRange(t *testing.T) {
	if _, err := P2P(MaxNodes+1, 0); err == nil {
		t.Error("expected error for node index above MaxNodes")
	}
	if _, err := RPC(-1, 0); err == nil {
		t.Error("expected error for negative node index")
	}
}

func TestDistinctSeedsDoNotOverlap(t *testing.T) {
	t.Setenv("TEST_RUNNER_PORT_MIN", "")
	a, err := Table(1, MaxNodes)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Table(2, MaxNodes)
	if err != nil {
		t.Fatal(err)
	}
	used := map[int]bool{}
	for _, p := range append(a, b...) {
		if used[p.P2P] || used[p.RPC] {
			t.Fatalf("port collision at node %d", p.Node)
		}
		used[p.P2P], used[p.RPC] = true, true
	}
}
