// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package typeset

import (
	"testing"
)

func TestBuildReplyImage(t *testing.T) {
	data := encodePNG(t, 320, 96)

	reply, err := BuildReply(&Result{Stdout: data})
	if err != nil {
		t.Fatalf("BuildReply: %v", err)
	}
	img, ok := reply.(Image)
	if !ok {
		t.Fatalf("reply is %T, want Image", reply)
	}
	if img.Width != 320 || img.Height != 96 {
		t.Errorf("size = %dx%d, want 320x96", img.Width, img.Height)
	}
	if img.MimeType != "image/png" {
		t.Errorf("mimetype = %q", img.MimeType)
	}
	if len(img.Data) != len(data) {
		t.Errorf("data = %d bytes, want %d", len(img.Data), len(data))
	}
}

func TestBuildReplyIgnoresWarningsOnSuccess(t *testing.T) {
	data := encodePNG(t, 4, 4)
	reply, err := BuildReply(&Result{Stdout: data, Stderr: []byte("warning: unused import")})
	if err != nil {
		t.Fatalf("BuildReply: %v", err)
	}
	if img := reply.(Image); len(img.Data) != len(data) {
		t.Errorf("stderr leaked into the image: %d bytes", len(img.Data))
	}
}

func TestBuildReplyInvalidImage(t *testing.T) {
	if _, err := BuildReply(&Result{Stdout: []byte("not a png")}); err == nil {
		t.Fatal("expected error for undecodable output")
	}
}

func TestBuildReplyCompileError(t *testing.T) {
	result := &Result{
		Stdout:   []byte("out:"),
		Stderr:   []byte(`error: expected expression <a href="x">&</a>`),
		ExitCode: 1,
	}

	reply, err := BuildReply(result)
	if err != nil {
		t.Fatalf("BuildReply: %v", err)
	}
	formatted, ok := reply.(FormattedError)
	if !ok {
		t.Fatalf("reply is %T, want FormattedError", reply)
	}
	wantRaw := `out:error: expected expression <a href="x">&</a>`
	if formatted.Raw != wantRaw {
		t.Errorf("raw = %q, want %q", formatted.Raw, wantRaw)
	}
	wantHTML := `<pre><code class="language-typst">out:error: expected expression &lt;a href=&#34;x&#34;&gt;&amp;&lt;/a&gt;</code></pre>`
	if formatted.HTML != wantHTML {
		t.Errorf("html = %q, want %q", formatted.HTML, wantHTML)
	}
}

func TestNewFormattedErrorReplacesInvalidUTF8(t *testing.T) {
	formatted := NewFormattedError([]byte("bad \xff byte"))
	if formatted.Raw != "bad \uFFFD byte" {
		t.Errorf("raw = %q", formatted.Raw)
	}
}
