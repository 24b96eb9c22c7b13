package lint

import "gopkg.in/yaml.v3"

// Node navigation over the parsed YAML document. All helpers tolerate nil
// receivers and missing paths by returning nil, so rules can chain lookups
// and fall back to position-less problems.

// docRoot unwraps the document wrapper to the top-level mapping.
func docRoot(doc *yaml.Node) *yaml.Node {
	if doc == nil {
		return nil
	}
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil
		}
		return doc.Content[0]
	}
	return doc
}

// mapValue returns the value node for key in a mapping node.
func mapValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// mapKey returns the key node itself, for pointing at the key rather than
// its value.
func mapKey(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i]
		}
	}
	return nil
}

// seqItem returns the i-th element of a sequence node.
func seqItem(node *yaml.Node, i int) *yaml.Node {
	if node == nil || node.Kind != yaml.SequenceNode {
		return nil
	}
	if i < 0 || i >= len(node.Content) {
		return nil
	}
	return node.Content[i]
}

// includeNode returns the node of the i-th matrix.include row, honoring the
// jobs alias.
func includeNode(doc *yaml.Node, i int) *yaml.Node {
	root := docRoot(doc)
	matrix := mapValue(root, "matrix")
	if matrix == nil {
		matrix = mapValue(root, "jobs")
	}
	return seqItem(mapValue(matrix, "include"), i)
}

// jobFieldNode returns the value node of a field on the i-th include row,
// falling back to the row node itself when the field is absent.
func jobFieldNode(doc *yaml.Node, i int, field string) *yaml.Node {
	row := includeNode(doc, i)
	if row == nil {
		return nil
	}
	if v := mapValue(row, field); v != nil {
		return v
	}
	return row
}

// position extracts the 1-based line and column of a node. Zero values mean
// the position is unknown.
func position(node *yaml.Node) (line, col int) {
	if node == nil {
		return 0, 0
	}
	return node.Line, node.Column
}
