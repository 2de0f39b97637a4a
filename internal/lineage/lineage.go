// Package lineage builds the dependency graph rooted at one entity, walking
// the foreign-key relationships enumerated in spec.md §3 into a
// {nodes, edges} DAG. Grounded on app/services/lineage.py.
package lineage

import (
	"context"
	"fmt"

	"github.com/meridianrisk/exposure-engine/internal/store"
)

// Relation names the edge kinds this builder emits.
const (
	RelationDependsOn  = "DEPENDS_ON"
	RelationProducedBy = "PRODUCED_BY"
)

// Node is one entity in the lineage graph.
type Node struct {
	Key      string `json:"key"`
	Type     string `json:"type"`
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// Edge connects two nodes by key.
type Edge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// Graph is the full lineage output, rooted at one entity.
type Graph struct {
	Root  Node   `json:"root"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// builder accumulates nodes/edges while walking one entity's lineage,
// deduplicating nodes by key the way lineage.py's self.nodes dict does.
type builder struct {
	ctx      context.Context
	tenantID string
	stores   store.Stores
	nodes    map[string]Node
	order    []string
	edges    []Edge
}

func key(typ, id string) string { return fmt.Sprintf("%s:%s", typ, id) }

func (b *builder) addNode(n Node) {
	if n.ID == "" {
		return
	}
	k := key(n.Type, n.ID)
	n.Key = k
	if _, exists := b.nodes[k]; !exists {
		b.nodes[k] = n
		b.order = append(b.order, k)
	}
}

func (b *builder) addEdge(fromType, fromID, toType, toID, relation string) {
	if fromID == "" || toID == "" {
		return
	}
	b.edges = append(b.edges, Edge{From: key(fromType, fromID), To: key(toType, toID), Relation: relation})
}

func (b *builder) finalize(rootType, rootID string) *Graph {
	nodes := make([]Node, 0, len(b.order))
	for _, k := range b.order {
		nodes = append(nodes, b.nodes[k])
	}
	return &Graph{Root: Node{Type: rootType, ID: rootID, Key: key(rootType, rootID)}, Nodes: nodes, Edges: b.edges}
}

// Build walks entityType/entityID's lineage. Supported entity types:
// rollup_result, hazard_dataset_version, drift_run, exposure_version.
// hazard_overlay_result is accepted but always yields a nil graph (see
// findOverlay); any other type, or an entity that is not found, also
// yields a nil graph and no error.
func Build(ctx context.Context, stores store.Stores, tenantID, entityType, entityID string) (*Graph, error) {
	b := &builder{ctx: ctx, tenantID: tenantID, stores: stores, nodes: make(map[string]Node)}

	switch entityType {
	case "rollup_result":
		return b.buildForRollupResult(entityID)
	case "hazard_overlay_result":
		return b.buildForOverlay(entityID)
	case "hazard_dataset_version":
		return b.buildForHazardDatasetVersion(entityID)
	case "drift_run":
		return b.buildForDrift(entityID)
	case "exposure_version":
		return b.buildForExposureVersion(entityID)
	default:
		return nil, nil
	}
}

func (b *builder) buildForRollupResult(id string) (*Graph, error) {
	rr, err := b.stores.GetRollupResult(b.ctx, b.tenantID, id)
	if err != nil || rr == nil {
		return nil, nil
	}
	b.addNode(Node{Type: "rollup_result", ID: rr.ID, RunID: rr.RunID, Checksum: rr.Checksum})

	if rr.RollupConfigID != "" {
		if cfg, err := b.stores.GetRollupConfig(b.ctx, b.tenantID, rr.RollupConfigID); err == nil && cfg != nil {
			b.addNode(Node{Type: "rollup_config", ID: cfg.ID, Label: cfg.Name})
			b.addEdge("rollup_result", rr.ID, "rollup_config", cfg.ID, RelationDependsOn)
		}
	}
	if rr.RunID != "" {
		if run, err := b.stores.GetRun(b.ctx, b.tenantID, rr.RunID); err == nil && run != nil {
			b.addNode(Node{Type: "run", ID: run.ID})
			b.addEdge("rollup_result", rr.ID, "run", run.ID, RelationProducedBy)
			if evID, _ := run.InputRefs["exposure_version_id"].(string); evID != "" {
				b.addNode(Node{Type: "exposure_version", ID: evID})
				b.addEdge("run", run.ID, "exposure_version", evID, RelationDependsOn)
			}
		}
	}
	return b.finalize("rollup_result", rr.ID), nil
}

func (b *builder) buildForOverlay(id string) (*Graph, error) {
	overlay, err := b.findOverlay(id)
	if err != nil || overlay == nil {
		return nil, nil
	}
	b.addNode(Node{Type: "hazard_overlay_result", ID: overlay.ID, RunID: overlay.RunID})
	b.addNode(Node{Type: "exposure_version", ID: overlay.ExposureVersionID})
	b.addEdge("hazard_overlay_result", overlay.ID, "exposure_version", overlay.ExposureVersionID, RelationDependsOn)

	if hdvID, _ := overlay.Params["hazard_dataset_version_id"].(string); hdvID != "" {
		if hdv, err := b.stores.GetHazardDatasetVersion(b.ctx, hdvID); err == nil && hdv != nil {
			b.addNode(Node{Type: "hazard_dataset_version", ID: hdv.ID, Label: hdv.VersionLabel, Checksum: hdv.Checksum})
			b.addEdge("hazard_overlay_result", overlay.ID, "hazard_dataset_version", hdv.ID, RelationDependsOn)
			if hd, err := b.stores.GetHazardDataset(b.ctx, b.tenantID, hdv.DatasetID); err == nil && hd != nil {
				b.addNode(Node{Type: "hazard_dataset", ID: hd.ID, Label: hd.Name})
				b.addEdge("hazard_dataset_version", hdv.ID, "hazard_dataset", hd.ID, RelationDependsOn)
			}
		}
	}
	if overlay.RunID != "" {
		if run, err := b.stores.GetRun(b.ctx, b.tenantID, overlay.RunID); err == nil && run != nil {
			b.addNode(Node{Type: "run", ID: run.ID})
			b.addEdge("hazard_overlay_result", overlay.ID, "run", run.ID, RelationProducedBy)
		}
	}
	return b.finalize("hazard_overlay_result", overlay.ID), nil
}

// findOverlay is the extension point for resolving an overlay result by id
// alone. store.OverlayStore has no lookup of an overlay result by id, so
// findOverlay always returns nil, and Build for hazard_overlay_result
// returns a nil graph and no error.
func (b *builder) findOverlay(id string) (*overlayResult, error) {
	return nil, nil
}

type overlayResult struct {
	ID                string
	ExposureVersionID string
	RunID             string
	Params            map[string]any
}

func (b *builder) buildForHazardDatasetVersion(id string) (*Graph, error) {
	hdv, err := b.stores.GetHazardDatasetVersion(b.ctx, id)
	if err != nil || hdv == nil {
		return nil, nil
	}
	b.addNode(Node{Type: "hazard_dataset_version", ID: hdv.ID, Label: hdv.VersionLabel, Checksum: hdv.Checksum})
	if hd, err := b.stores.GetHazardDataset(b.ctx, b.tenantID, hdv.DatasetID); err == nil && hd != nil {
		b.addNode(Node{Type: "hazard_dataset", ID: hd.ID, Label: hd.Name})
		b.addEdge("hazard_dataset_version", hdv.ID, "hazard_dataset", hd.ID, RelationDependsOn)
	}
	return b.finalize("hazard_dataset_version", id), nil
}

func (b *builder) buildForDrift(id string) (*Graph, error) {
	drift, err := b.stores.GetDriftRun(b.ctx, b.tenantID, id)
	if err != nil || drift == nil {
		return nil, nil
	}
	b.addNode(Node{Type: "drift_run", ID: drift.ID, RunID: drift.RunID, Checksum: drift.Checksum})
	b.addNode(Node{Type: "exposure_version", ID: drift.ExposureVersionAID})
	b.addNode(Node{Type: "exposure_version", ID: drift.ExposureVersionBID})
	b.addEdge("drift_run", drift.ID, "exposure_version", drift.ExposureVersionAID, RelationDependsOn)
	b.addEdge("drift_run", drift.ID, "exposure_version", drift.ExposureVersionBID, RelationDependsOn)
	if drift.RunID != "" {
		if run, err := b.stores.GetRun(b.ctx, b.tenantID, drift.RunID); err == nil && run != nil {
			b.addNode(Node{Type: "run", ID: run.ID})
			b.addEdge("drift_run", drift.ID, "run", run.ID, RelationProducedBy)
		}
	}
	return b.finalize("drift_run", drift.ID), nil
}

func (b *builder) buildForExposureVersion(id string) (*Graph, error) {
	ev, err := b.stores.GetExposureVersion(b.ctx, b.tenantID, id)
	if err != nil || ev == nil {
		return nil, nil
	}
	b.addNode(Node{Type: "exposure_version", ID: ev.ID})
	if ev.UploadID != "" {
		b.addNode(Node{Type: "exposure_upload", ID: ev.UploadID})
		b.addEdge("exposure_version", ev.ID, "exposure_upload", ev.UploadID, RelationDependsOn)
	}
	if ev.MappingTemplateID != nil && *ev.MappingTemplateID != "" {
		b.addNode(Node{Type: "mapping_template", ID: *ev.MappingTemplateID})
		b.addEdge("exposure_version", ev.ID, "mapping_template", *ev.MappingTemplateID, RelationDependsOn)
	}
	return b.finalize("exposure_version", ev.ID), nil
}
