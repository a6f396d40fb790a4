// Package onnxrt locates the ONNX Runtime shared library shared by the
// beat and key model wrappers, following the same environment-variable-
// then-platform-default search the teacher used for libonnxruntime.
package onnxrt

import "os"

// LibraryPath returns the path to the ONNX Runtime shared library: the
// ONNXRUNTIME_LIB_PATH environment variable if set, otherwise the first
// existing well-known install location for the current platform family,
// otherwise the bare library name so the dynamic loader can still try.
func LibraryPath() string {
	if path := os.Getenv("ONNXRUNTIME_LIB_PATH"); path != "" {
		return path
	}

	candidates := []string{
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
		`C:\Program Files\onnxruntime\onnxruntime.dll`,
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "onnxruntime"
}
