package cypher

import "github.com/nervus-db/nervusdb/pkg/storage"

// materializeNodeIfBare resolves a node id's labels and properties,
// choosing between a bare VKNodeID and a fully materialized VKNode
// depending on whether it carries any labels or properties: if both are
// empty the bare id is returned. This is applied only at final projection time (RETURN
// referencing a node id alone), not while a node is threaded internally
// through MATCH/Expand.
func materializeNodeIfBare(env *Env, id storage.NodeID) Value {
	labels, props := resolveNodeLabelsAndProps(env, id)
	if len(labels) == 0 && len(props) == 0 {
		return NodeIDValue(id)
	}
	return NodeValue(&MaterializedNode{ID: id, Labels: labels, Properties: props})
}

// nodeLabelNames resolves id's current label names, merging the overlay's
// pending additions and removals for both real and anonymous (overlay-only)
// nodes. This is the single label-resolution path every pattern-matching
// and materialization step shares, so reads inside a write transaction
// observe (snapshot ∪ overlay ∖ deleted) uniformly.
func nodeLabelNames(env *Env, id storage.NodeID) []string {
	var labels []string
	if env.Overlay != nil && env.Overlay.IsAnon(id) {
		rec, ok := env.Overlay.CreatedNodeRecord(id)
		if !ok {
			return nil
		}
		labels = append([]string(nil), rec.Labels...)
	} else {
		labelIDs, _ := env.Snapshot.ResolveNodeLabels(id)
		labels = make([]string, 0, len(labelIDs))
		for _, lid := range labelIDs {
			if name, ok := env.Snapshot.ResolveLabelName(lid); ok {
				labels = append(labels, name)
			}
		}
	}
	if env.Overlay != nil {
		labels = append(labels, env.Overlay.AddedLabels(id)...)
		labels = subtractStrings(labels, env.Overlay.RemovedLabels(id))
	}
	return labels
}

func resolveNodeLabelsAndProps(env *Env, id storage.NodeID) ([]string, map[string]Value) {
	labels := nodeLabelNames(env, id)
	if env.Overlay != nil && env.Overlay.IsAnon(id) {
		rec, ok := env.Overlay.CreatedNodeRecord(id)
		if !ok {
			return nil, nil
		}
		props := make(map[string]Value, len(rec.Properties))
		for k, v := range rec.Properties {
			props[k] = v
		}
		for k, v := range env.Overlay.nodeProps[id] {
			props[k] = v
		}
		return labels, props
	}
	props := make(map[string]Value)
	for key, v := range env.Snapshot.NodeProperties(id) {
		name, ok := env.Snapshot.ResolveLabelName(key)
		if !ok {
			continue
		}
		props[name] = propvalToValue(v)
	}
	if env.Overlay != nil {
		for k, v := range env.Overlay.nodeProps[id] {
			props[k] = v
		}
	}
	return labels, props
}

func subtractStrings(base []string, remove []string) []string {
	if len(remove) == 0 {
		return base
	}
	dead := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		dead[r] = struct{}{}
	}
	out := base[:0]
	for _, s := range base {
		if _, ok := dead[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// materializeEdgeIfBare applies the same lazy-materialization rule to
// edges, symmetric with nodes.
func materializeEdgeIfBare(env *Env, k storage.EdgeKey) Value {
	props := make(map[string]Value)
	for key, v := range env.Snapshot.EdgeProperties(k) {
		name, ok := env.Snapshot.ResolveLabelName(key)
		if !ok {
			continue
		}
		props[name] = propvalToValue(v)
	}
	if env.Overlay != nil {
		for k2, v := range env.Overlay.edgeProps[k] {
			props[k2] = v
		}
	}
	relName, _ := env.Snapshot.ResolveLabelName(k.Rel)
	if len(props) == 0 {
		return EdgeKeyValue(k)
	}
	return EdgeValue(&MaterializedEdge{Key: k, Type: relName, Properties: props})
}
