package viewer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRotation is returned when a rotation is not a multiple of 90.
	ErrInvalidRotation = errors.New("rotation must be a multiple of 90")
	// ErrInvalidLength is returned when a width or height cannot be parsed.
	ErrInvalidLength = errors.New("invalid length")
	// ErrInvalidPage is returned for a negative page selector.
	ErrInvalidPage = errors.New("page selector must not be negative")
	// ErrPasswordCancelled is returned when the password prompt is abandoned.
	ErrPasswordCancelled = errors.New("password request cancelled")
	// ErrNoDocument is returned by operations that need a loaded document.
	ErrNoDocument = errors.New("no document loaded")
	// ErrNoPresentation is returned by Print when no presentation is configured.
	ErrNoPresentation = errors.New("no presentation surface configured")
	// ErrClosed is returned by a viewer after Close.
	ErrClosed = errors.New("viewer closed")
)

// ConfigError reports an invalid option. It is returned synchronously and
// must be corrected by the caller; retrying the same options fails again.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LoadError reports a source that could not be decoded or authenticated.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading document: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RenderError reports the first layer task that failed in a render pass.
type RenderError struct {
	Page  int
	Layer Layer
	Err   error
}

func (e *RenderError) Error() string {
	if e.Page == 0 {
		return fmt.Sprintf("rendering document: %v", e.Err)
	}
	if e.Layer == "" {
		return fmt.Sprintf("rendering page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("rendering %s layer of page %d: %v", e.Layer, e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// PrintError reports a failure anywhere in the print pipeline.
type PrintError struct {
	Err error
}

func (e *PrintError) Error() string {
	return fmt.Sprintf("printing document: %v", e.Err)
}

func (e *PrintError) Unwrap() error { return e.Err }
