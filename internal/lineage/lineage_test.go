package lineage

import "testing"

func TestKey_FormatsTypeAndID(t *testing.T) {
	if got := key("rollup_result", "abc"); got != "rollup_result:abc" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestBuilder_AddNodeDedupesAndPreservesOrder(t *testing.T) {
	b := &builder{nodes: make(map[string]Node)}
	b.addNode(Node{Type: "run", ID: "1"})
	b.addNode(Node{Type: "run", ID: "1"})
	b.addNode(Node{Type: "run", ID: "2"})
	if len(b.order) != 2 {
		t.Fatalf("expected 2 distinct nodes, got %d", len(b.order))
	}
	if b.order[0] != "run:1" || b.order[1] != "run:2" {
		t.Fatalf("unexpected order: %v", b.order)
	}
}

func TestBuilder_AddEdgeSkipsEmptyEndpoints(t *testing.T) {
	b := &builder{nodes: make(map[string]Node)}
	b.addEdge("run", "1", "exposure_version", "", RelationDependsOn)
	if len(b.edges) != 0 {
		t.Fatalf("expected no edges for empty endpoint, got %d", len(b.edges))
	}
	b.addEdge("run", "1", "exposure_version", "ev1", RelationProducedBy)
	if len(b.edges) != 1 || b.edges[0].To != "exposure_version:ev1" {
		t.Fatalf("unexpected edges: %+v", b.edges)
	}
}

func TestFinalize_SetsRootKey(t *testing.T) {
	b := &builder{nodes: make(map[string]Node)}
	g := b.finalize("run", "1")
	if g.Root.Key != "run:1" {
		t.Fatalf("unexpected root key: %s", g.Root.Key)
	}
}
