//go:build !teflib_off

package teflib

// captureCompiled is false when built with -tags teflib_off, which turns every
// recording call into a no-op the compiler can remove.
const captureCompiled = true
