package editsession

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"jobboard/api/internal/richtext"
	"jobboard/api/internal/tabledoc"
)

// NotReadyMessage is shown when a confirmed table has nowhere to go.
const NotReadyMessage = "Editor is not ready. Click inside the editor and try again."

var ErrEditorNotReady = errors.New("editor is not mounted")

// Outcome is what a confirmed table did to the field.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeReplaced Outcome = "replaced"
	OutcomeAborted  Outcome = "aborted"
	OutcomeDropped  Outcome = "dropped"
)

// Controller owns one field's editor and its edit session. While a table
// from this field is being edited the session is armed with that table's
// reference, and confirm replaces it instead of inserting.
type Controller struct {
	field     FieldKey
	form      *Form
	container *richtext.Container
	editor    *richtext.Editor
	value     string

	target *richtext.NodeRef
	result Outcome
}

func (c *Controller) Field() FieldKey {
	return c.field
}

// Editor returns the mounted editor, or nil.
func (c *Controller) Editor() *richtext.Editor {
	return c.editor
}

// Armed reports whether a replace target is set.
func (c *Controller) Armed() bool {
	return c.target != nil
}

// Mount creates a fresh editor holding the field's last known value.
func (c *Controller) Mount() *richtext.Editor {
	c.editor = richtext.NewEditor(c.form.registry, c.container, c.form.log)
	c.editor.Load(c.value)
	return c.editor
}

// Unmount keeps the field value and drops the editor. Any armed reference
// becomes unresolvable.
func (c *Controller) Unmount() {
	if c.editor != nil {
		c.value = c.editor.HTML()
	}
	c.editor = nil
}

func (c *Controller) Value() string {
	if c.editor != nil {
		return c.editor.HTML()
	}
	return c.value
}

// SetValue loads stored markup into the field.
func (c *Controller) SetValue(markup string) {
	c.value = markup
	if c.editor != nil {
		c.editor.Load(markup)
	}
}

// OpenInsert opens the builder on a fresh table for this field.
func (c *Controller) OpenInsert() error {
	c.form.claim(c)
	c.target = nil
	return c.form.builder.OpenForInsert(c.apply)
}

// HandleEditRequest arms the session with the request's table and opens the
// builder on its parsed contents.
func (c *Controller) HandleEditRequest(req EditRequest) error {
	doc := tabledoc.Parse(req.Markup)
	c.form.claim(c)
	node := req.Node
	c.target = &node
	if err := c.form.builder.OpenForEdit(doc, c.apply); err != nil {
		c.target = nil
		return err
	}
	return nil
}

func (c *Controller) disarm() {
	c.target = nil
}

// apply is the builder's confirm callback.
func (c *Controller) apply(markup string) {
	target := c.target
	c.target = nil
	if target != nil {
		c.result = c.replace(*target, markup)
	} else {
		c.result = c.insert(markup)
	}
	c.form.observe(c.field, c.result)
}

func (c *Controller) insert(markup string) Outcome {
	ed := c.editor
	if ed == nil {
		return c.abort("insert", ErrEditorNotReady)
	}
	pos := ed.Length()
	if sel, ok := ed.Selection(); ok {
		pos = sel.Index
	}
	if _, err := ed.InsertUnit(richtext.TableEmbedName, markup, pos); err != nil {
		return c.abort("insert", err)
	}
	ed.SetSelection(pos+1, 0)
	return OutcomeInserted
}

func (c *Controller) replace(target richtext.NodeRef, markup string) Outcome {
	ed := c.editor
	if ed == nil || target.Editor != ed {
		return c.abort("replace", ErrEditorNotReady)
	}
	pos, ok := ed.Locate(target.Unit)
	if !ok {
		return c.abort("replace", richtext.ErrUnitNotFound)
	}
	if _, err := ed.InsertUnit(richtext.TableEmbedName, markup, pos); err != nil {
		return c.abort("replace", err)
	}
	if err := ed.DeleteUnit(pos+1, 1); err != nil {
		return c.abort("replace", err)
	}
	ed.SetSelection(pos+1, 0)
	return OutcomeReplaced
}

func (c *Controller) abort(action string, err error) Outcome {
	c.form.log.Warn("table "+action+" aborted",
		zap.String("field", string(c.field)),
		zap.Error(err),
	)
	c.form.notify(NotReadyMessage)
	return OutcomeAborted
}
