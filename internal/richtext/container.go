package richtext

// Container is an enclosing region of the admin page. Editors are mounted in
// containers; a container tagged with a field key marks the region that owns
// one content field.
type Container struct {
	ID     string
	Field  string
	Parent *Container
}

func NewContainer(id string, parent *Container) *Container {
	return &Container{ID: id, Parent: parent}
}

// Tagged returns a container carrying an explicit field key.
func Tagged(id, field string, parent *Container) *Container {
	return &Container{ID: id, Field: field, Parent: parent}
}

// FieldTag walks outward from c and returns the first field tag found.
func (c *Container) FieldTag() (string, bool) {
	for cur := c; cur != nil; cur = cur.Parent {
		if cur.Field != "" {
			return cur.Field, true
		}
	}
	return "", false
}
