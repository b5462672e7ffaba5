package threading

// Container is a node in the thread tree: either a real message (EmailID
// set) or a phantom (referenced but absent from the dataset). Lives only
// in process memory per list; never persisted.
type Container struct {
	MessageID string
	EmailID   *int64 // nil ⇒ phantom
	Parent    string // empty ⇒ root
	Children  []string
}

func (c *Container) IsPhantom() bool {
	return c.EmailID == nil
}

// AddChild appends child_msg_id, skipping duplicates.
func (c *Container) AddChild(childMsgID string) {
	for _, existing := range c.Children {
		if existing == childMsgID {
			return
		}
	}
	c.Children = append(c.Children, childMsgID)
}

// detectCycleInAncestry walks the proposed parent's ancestry up to the
// root. It refuses the link if the child appears anywhere on that chain,
// or if the ancestry itself repeats a node (prior corruption).
func detectCycleInAncestry(table map[string]*Container, childMessageID, parentMessageID string) bool {
	visited := make(map[string]bool)
	current := parentMessageID

	for current != "" {
		if visited[current] {
			return true
		}
		visited[current] = true

		if current == childMessageID {
			return true
		}

		container, ok := table[current]
		if !ok {
			break
		}
		current = container.Parent
	}
	return false
}
