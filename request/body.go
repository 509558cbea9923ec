// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"errors"
	"io"
)

const badBodyTypeMsg = "evhttp/request: invalid body type (use nil, " +
	"string, []byte, io.Reader or io.ReadCloser)"

// BodyBytes buffers a plan body.
//
// A nil body yields nil. A string or []byte is converted or returned
// as is. An io.Reader is read to the end, and an io.ReadCloser is also
// closed; a read or close error is returned with a nil slice. Any
// other type is an error.
func BodyBytes(body interface{}) ([]byte, error) {
	switch x := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case io.ReadCloser:
		b, err := io.ReadAll(x)
		if cErr := x.Close(); err == nil {
			err = cErr
		}
		if err != nil {
			return nil, err
		}
		return b, nil
	case io.Reader:
		b, err := io.ReadAll(x)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, errors.New(badBodyTypeMsg)
	}
}
