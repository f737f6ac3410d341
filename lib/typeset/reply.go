// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package typeset

import (
	"bytes"
	"fmt"
	"html"
	"image"
	_ "image/png" // registers the PNG decoder for image.DecodeConfig
	"strings"
)

// Reply is what the bot answers a command with. The concrete type is
// PlainText, FormattedError or Image.
type Reply interface {
	reply()
}

// PlainText is an unformatted text reply.
type PlainText struct {
	Body string
}

// FormattedError carries compiler diagnostics as plain text and as an
// HTML code block.
type FormattedError struct {
	Raw  string
	HTML string
}

// Image is a rendered image.
type Image struct {
	Data     []byte
	Width    int
	Height   int
	MimeType string
}

func (PlainText) reply()      {}
func (FormattedError) reply() {}
func (Image) reply()          {}

// Fixed reply texts.
const (
	EmptySourceMessage = "<text> is needed to typeset"
	TimeoutMessage     = "Your code took too long to render"
)

// BuildReply converts a finished compiler run into a reply. Failed
// runs become a FormattedError over stdout followed by stderr, with
// invalid UTF-8 replaced. Successful runs must have produced a
// decodable image on stdout.
func BuildReply(result *Result) (Reply, error) {
	if !result.Success() {
		return NewFormattedError(result.Output()), nil
	}

	config, format, err := image.DecodeConfig(bytes.NewReader(result.Stdout))
	if err != nil {
		return nil, fmt.Errorf("decoding compiler output as image: %w", err)
	}
	return Image{
		Data:     result.Stdout,
		Width:    config.Width,
		Height:   config.Height,
		MimeType: "image/" + format,
	}, nil
}

// NewFormattedError builds the error reply for raw diagnostics.
func NewFormattedError(output []byte) FormattedError {
	raw := strings.ToValidUTF8(string(output), "\uFFFD")
	return FormattedError{
		Raw:  raw,
		HTML: `<pre><code class="language-typst">` + html.EscapeString(raw) + `</code></pre>`,
	}
}
