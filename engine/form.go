// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"sync"
)

// A Form is a multipart/form-data request body. Setting a Form on a
// handle makes its transfers POST requests.
//
// Form is safe for concurrent use. Its contents are encoded when a
// transfer starts.
type Form struct {
	mu    sync.Mutex
	parts []formPart
}

type formPart struct {
	name        string
	fileName    string
	contentType string
	content     []byte
}

// NewForm returns an empty Form.
func NewForm() *Form {
	return &Form{}
}

// AddField adds a plain form field.
func (f *Form) AddField(name, value string) {
	f.add(formPart{name: name, content: []byte(value)})
}

// AddFile adds a file part. An empty contentType defaults to
// application/octet-stream.
func (f *Form) AddFile(name, fileName, contentType string, content []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	f.add(formPart{
		name:        name,
		fileName:    fileName,
		contentType: contentType,
		content:     append([]byte(nil), content...),
	})
}

// Len returns the number of parts in the form.
func (f *Form) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.parts)
}

func (f *Form) add(p formPart) {
	f.mu.Lock()
	f.parts = append(f.parts, p)
	f.mu.Unlock()
}

// encode returns the encoded form and its Content-Type.
func (f *Form) encode() ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range f.parts {
		var err error
		if p.fileName == "" {
			err = w.WriteField(p.name, string(p.content))
		} else {
			err = writeFile(w, p)
		}
		if err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeFile(w *multipart.Writer, p formPart) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+escapeQuotes(p.name)+`"; filename="`+escapeQuotes(p.fileName)+`"`)
	h.Set("Content-Type", p.contentType)
	pw, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = pw.Write(p.content)
	return err
}

func escapeQuotes(s string) string {
	var b bytes.Buffer
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
