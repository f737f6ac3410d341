// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package typeset

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/typbot/lib/testutil"
)

// encodePNG returns a width x height PNG.
func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	canvas.Set(0, 0, color.RGBA{R: 0x1e, G: 0x1e, B: 0x2e, A: 0xff})
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, canvas); err != nil {
		t.Fatalf("encoding PNG: %v", err)
	}
	return buffer.Bytes()
}

// writeFile writes data into the test's temp dir and returns the path.
func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// shellCompiler returns a Compiler that runs script with sh -c in
// place of typst.
func shellCompiler(script string, timeout time.Duration) *Compiler {
	return NewCompiler(CompilerConfig{
		Binary:  "sh",
		Args:    []string{"-c", script},
		Timeout: timeout,
		Logger:  testutil.Logger(),
	})
}

// pngCompiler consumes stdin and prints a width x height PNG.
func pngCompiler(t *testing.T, width, height int) *Compiler {
	t.Helper()
	path := writeFile(t, "render.png", encodePNG(t, width, height))
	return shellCompiler("cat >/dev/null; cat '"+path+"'", 5*time.Second)
}
