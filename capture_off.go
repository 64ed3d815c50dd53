//go:build teflib_off

package teflib

const captureCompiled = false
