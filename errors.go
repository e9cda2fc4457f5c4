package hxnet

import (
	"errors"
	"fmt"
)

// Sentinel errors for render and build operations.
var (
	ErrNoRender          = errors.New("hxnet: no page is being rendered")
	ErrContextLost       = errors.New("hxnet: page render exited while a component was still rendering")
	ErrConstructionOrder = errors.New("hxnet: component construction order violated")
	ErrNoRenderer        = errors.New("hxnet: component has no render function")
	ErrRenderPanic       = errors.New("hxnet: render function panicked")
	ErrNotFound          = errors.New("hxnet: resource not found")
	ErrInvalidFormat     = errors.New("hxnet: invalid parameter format")
	ErrSignatureInvalid  = errors.New("hxnet: signature verification failed")
	ErrDecryptFailed     = errors.New("hxnet: parameter decryption failed")
)

// IsNotFound checks if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDecryptionError checks if err is a decryption or signature error.
func IsDecryptionError(err error) bool {
	return errors.Is(err, ErrDecryptFailed) || errors.Is(err, ErrSignatureInvalid)
}

// IsProtocolError reports whether err is a render protocol misuse: rendering
// or exiting with no page entered, or a page that vanished mid render.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrNoRender) || errors.Is(err, ErrContextLost)
}

// recoverPanic runs fn and returns a panic raised by it as an error
// wrapping ErrRenderPanic.
func recoverPanic(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRenderPanic, r)
		}
	}()
	return fn()
}
