package sim

// StandaloneCode emits a fixed template into one code generation hook. The
// template is substituted from the parent, so identifiers such as name refer
// to the node the code belongs to.
type StandaloneCode struct {
	NodeBase
	Hook HookName
	Code string
}

// NewStandaloneCode registers code for hook under parent. Empty code emits
// nothing.
func NewStandaloneCode(parent Node, basename string, hook HookName, code string) *StandaloneCode {
	if parent == nil {
		panic("StandaloneCode: parent must not be nil")
	}
	c := &StandaloneCode{Hook: hook, Code: code}
	c.Init(c, parent, basename)
	c.OnCG(hook, func(g *Generator) error {
		if c.Code == "" {
			return nil
		}
		return g.EmitFrom(c.Parent(), c.Code)
	})
	return c
}
