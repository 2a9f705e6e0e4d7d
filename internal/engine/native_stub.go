//go:build !cgo || !admengine

package engine

// Available reports whether the native engine is linked in.
func Available() bool { return false }

// Native is a placeholder used when the binary is built without the native
// engine. Every render fails with ErrNotBuilt.
type Native struct{}

func NewNative() *Native { return &Native{} }

func (n *Native) Render(req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, ErrNotBuilt
}
