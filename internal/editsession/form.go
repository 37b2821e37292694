package editsession

import (
	"go.uber.org/zap"

	"jobboard/api/internal/richtext"
	"jobboard/api/internal/tablebuilder"
	"jobboard/api/internal/tabledoc"
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(message string)
}

type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// Observer counts table edit outcomes per field.
type Observer interface {
	TableEdit(field, outcome string)
}

type Options struct {
	Log      *zap.Logger
	Notifier Notifier
	Observer Observer
}

// Form is one job form: the four rich text fields, a shared bridge and a
// single table builder. At most one builder session is open at a time.
// A Form is not safe for concurrent use.
type Form struct {
	log      *zap.Logger
	notifier Notifier
	observer Observer

	bridge      *Bridge
	unsubscribe func()
	registry    *richtext.Registry
	builder     *tablebuilder.Builder
	root        *richtext.Container
	controllers map[FieldKey]*Controller
	active      *Controller
}

// Session describes the open builder.
type Session struct {
	Field    FieldKey           `json:"field"`
	Mode     string             `json:"mode"`
	Document *tabledoc.Document `json:"document"`
	Preview  string             `json:"preview"`
	Presets  []tabledoc.Preset  `json:"presets"`
}

// Result reports what Confirm did.
type Result struct {
	Field   FieldKey `json:"field"`
	Outcome Outcome  `json:"outcome"`
	Markup  string   `json:"markup"`
}

// NewForm builds the form with every field's editor mounted.
func NewForm(opts Options) *Form {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	f := &Form{
		log:         log,
		notifier:    opts.Notifier,
		observer:    opts.Observer,
		bridge:      NewBridge(log),
		registry:    richtext.NewRegistry(),
		builder:     tablebuilder.New(),
		root:        richtext.NewContainer("job-form", nil),
		controllers: make(map[FieldKey]*Controller, len(Fields)),
	}
	f.registry.Register(richtext.NewTableEmbed(func(markup string, node richtext.NodeRef) {
		f.bridge.Raise(EditRequest{Markup: markup, Node: node})
	}))
	for _, field := range Fields {
		region := richtext.Tagged(containerIDs[field], string(field), f.root)
		c := &Controller{
			field:     field,
			form:      f,
			container: richtext.NewContainer("ql-container", region),
		}
		c.Mount()
		f.controllers[field] = c
	}
	f.unsubscribe = f.bridge.Subscribe(f.handle)
	return f
}

// Close detaches the form from its bridge. Later edit requests are dropped.
func (f *Form) Close() {
	f.Cancel()
	f.unsubscribe()
}

func (f *Form) Bridge() *Bridge {
	return f.bridge
}

// Root is the page region every field sits in.
func (f *Form) Root() *richtext.Container {
	return f.root
}

func (f *Form) Field(key FieldKey) (*Controller, bool) {
	c, ok := f.controllers[key]
	return c, ok
}

// Load sets every field present in values.
func (f *Form) Load(values map[FieldKey]string) {
	for key, markup := range values {
		if c, ok := f.controllers[key]; ok {
			c.SetValue(markup)
		}
	}
}

// Values returns the stored markup of every field.
func (f *Form) Values() map[FieldKey]string {
	out := make(map[FieldKey]string, len(f.controllers))
	for key, c := range f.controllers {
		out[key] = c.Value()
	}
	return out
}

// Activate is a click on the Edit button of the table ref in field.
func (f *Form) Activate(field FieldKey, ref richtext.Ref) error {
	c, ok := f.controllers[field]
	if !ok || c.editor == nil {
		return ErrEditorNotReady
	}
	return c.editor.Activate(ref)
}

// Apply forwards a mutation to the open builder.
func (f *Form) Apply(op tablebuilder.Op) error {
	return f.builder.Apply(op)
}

// Session returns the open builder session, if any.
func (f *Form) Session() (Session, bool) {
	doc, err := f.builder.Document()
	if err != nil || f.active == nil {
		return Session{}, false
	}
	preview, _ := f.builder.Preview()
	return Session{
		Field:    f.active.field,
		Mode:     f.builder.State().String(),
		Document: doc,
		Preview:  preview,
		Presets:  tabledoc.PresetColors,
	}, true
}

// Confirm closes the builder and applies its table to the owning field.
func (f *Form) Confirm() (Result, error) {
	c := f.active
	if c == nil {
		return Result{}, tablebuilder.ErrClosed
	}
	markup, err := f.builder.Confirm()
	if err != nil {
		return Result{}, err
	}
	f.active = nil
	return Result{Field: c.field, Outcome: c.result, Markup: markup}, nil
}

// Cancel closes the builder without touching any field.
func (f *Form) Cancel() {
	f.builder.Cancel()
	if f.active != nil {
		f.active.disarm()
		f.active = nil
	}
}

// handle attributes an edit request to the field whose region contains the
// requesting editor.
func (f *Form) handle(req EditRequest) {
	var (
		tag string
		ok  bool
	)
	if req.Node.Editor != nil && req.Node.Editor.Container() != nil {
		tag, ok = req.Node.Editor.Container().FieldTag()
	}
	c, known := f.controllers[FieldKey(tag)]
	if !ok || !known {
		f.log.Warn("table edit request dropped: no owning field", zap.String("field_tag", tag))
		f.observe("", OutcomeDropped)
		return
	}
	if err := c.HandleEditRequest(req); err != nil {
		f.log.Error("open table builder for edit", zap.String("field", string(c.field)), zap.Error(err))
	}
}

// claim gives the builder to c, cancelling whatever session was open.
func (f *Form) claim(c *Controller) {
	f.Cancel()
	f.active = c
}

func (f *Form) notify(message string) {
	if f.notifier != nil {
		f.notifier.Notify(message)
	}
}

func (f *Form) observe(field FieldKey, outcome Outcome) {
	if f.observer != nil {
		f.observer.TableEdit(string(field), string(outcome))
	}
}
