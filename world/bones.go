package world

// Node is one element of a loaded scene tree.
type Node struct {
	ID       uint32
	Name     string
	Children []*Node
}

// BoneIndex maps bone names to node ids.
type BoneIndex map[string]uint32

// BuildBoneIndex flattens the tree under root into a name index. When names
// repeat, the first node in depth-first pre-order wins. Unnamed nodes are
// skipped.
func BuildBoneIndex(root *Node) BoneIndex {
	index := make(BoneIndex)
	if root == nil {
		return index
	}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		if _, ok := index[n.Name]; !ok && n.Name != "" {
			index[n.Name] = n.ID
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return index
}

// Lookup returns the node ids for names, reporting the first missing name.
func (b BoneIndex) Lookup(names ...string) ([]uint32, string, bool) {
	ids := make([]uint32, len(names))
	for i, name := range names {
		id, ok := b[name]
		if !ok {
			return nil, name, false
		}
		ids[i] = id
	}
	return ids, "", true
}
