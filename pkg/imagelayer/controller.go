package imagelayer

// replacementController holds the content assigned to one layer. A nil
// assignment means the layer shows its default content.
type replacementController struct {
	assigned *Content
}

// assign stores content and reports the previous value and whether anything
// changed. Assigning the current reference again is a no-op.
func (c *replacementController) assign(content *Content) (previous *Content, changed bool) {
	previous = c.assigned
	if previous == content {
		return previous, false
	}
	c.assigned = content
	return previous, true
}

// active returns the assigned content, falling back to def.
func (c *replacementController) active(def *Content) *Content {
	if c.assigned != nil {
		return c.assigned
	}
	return def
}
