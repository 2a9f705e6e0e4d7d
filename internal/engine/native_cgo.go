//go:build cgo && admengine

package engine

/*
#cgo LDFLAGS: -ladm_engine
#include <stdlib.h>
#include <string.h>

extern int renderAdmContent(const char** input,
                            const char** destination,
                            const char** element_gains,
                            const char** element_id_to_render,
                            const char** output_message);
*/
import "C"

import "unsafe"

// Available reports whether the native engine is linked in.
func Available() bool { return true }

// Native calls renderAdmContent from libadm_engine.
type Native struct{}

func NewNative() *Native { return &Native{} }

// Render blocks for the whole native call. Input buffers are allocated right
// before the call and released right after it returns; the output message is
// owned by the engine and is copied, never freed here.
func (n *Native) Render(req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}

	source := C.CString(req.SourcePath)
	defer C.free(unsafe.Pointer(source))
	destination := C.CString(req.DestinationPath)
	defer C.free(unsafe.Pointer(destination))
	gains := optionalCString(req.GainMapping)
	defer freeOptional(gains)
	elementID := optionalCString(req.ElementID)
	defer freeOptional(elementID)

	// The engine receives pointers to these slots and may rewrite them, so
	// the frees above always target the original allocations.
	sourceSlot, destinationSlot, gainsSlot, elementSlot := source, destination, gains, elementID
	var message *C.char

	code := C.renderAdmContent(&sourceSlot, &destinationSlot, &gainsSlot, &elementSlot, &message)

	out := Outcome{Code: int(code)}
	if message != nil {
		out.Message = C.GoBytes(unsafe.Pointer(message), C.int(C.strlen(message)))
	}
	return out, nil
}

func optionalCString(s string) *C.char {
	if s == "" {
		return nil
	}
	return C.CString(s)
}

func freeOptional(p *C.char) {
	if p != nil {
		C.free(unsafe.Pointer(p))
	}
}
