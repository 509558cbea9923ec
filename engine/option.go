// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"fmt"
	"time"
)

// An Option identifies a handle option set with Handle.SetOption.
//
// The comment on each option gives the accepted value types. Options
// which take a pointer or interface accept nil to restore the default.
type Option int

const (
	// OptURL is the URL to transfer (string).
	OptURL Option = iota
	// OptCustomRequest replaces the request method (string; "" for
	// the default).
	OptCustomRequest
	// OptNoBody makes the request a HEAD request (bool).
	OptNoBody
	// OptPost makes the request a POST request (bool).
	OptPost
	// OptUpload makes the request a PUT request with a body from the
	// read function (bool).
	OptUpload
	// OptPostFields is the complete POST body (string or []byte; nil
	// to unset).
	OptPostFields
	// OptPostFieldSize overrides the POST body length (int64 or int;
	// -1 for the body's own length).
	OptPostFieldSize
	// OptInFileSize is the length of the body supplied by the read
	// function (int64 or int; -1 for unknown, which sends it chunked).
	OptInFileSize
	// OptHTTPPost is a multipart form to POST (*Form).
	OptHTTPPost
	// OptHTTPHeader is the list of request header lines (*StringList).
	OptHTTPHeader
	// OptHTTP200Aliases lists status codes or status lines treated as
	// success by OptFailOnError (*StringList).
	OptHTTP200Aliases
	// OptResolve lists "host:port:addr[,addr]" overrides (*StringList).
	OptResolve
	// OptShare shares state between handles (*Share).
	OptShare
	// OptTimeout bounds the whole transfer (time.Duration; 0 for none).
	OptTimeout
	// OptConnectTimeout bounds each connection attempt (time.Duration;
	// 0 for none).
	OptConnectTimeout
	// OptFollowLocation follows redirects (bool).
	OptFollowLocation
	// OptMaxRedirs bounds followed redirects (int; -1 for the default).
	OptMaxRedirs
	// OptFailOnError fails transfers with status 400 or higher (bool).
	OptFailOnError
	// OptUserAgent is the User-Agent header (string).
	OptUserAgent
	// OptNoProgress disables the progress function (bool).
	OptNoProgress
	// OptOpenSocketFunction opens sockets (SocketOpener).
	OptOpenSocketFunction
	// OptCloseSocketFunction closes sockets (SocketCloser).
	OptCloseSocketFunction
	// OptReadFunction supplies the request body (BodyReader).
	OptReadFunction
	// OptSeekFunction rewinds the request body (BodySeeker).
	OptSeekFunction
	// OptWriteFunction receives the response body (BodyWriter).
	OptWriteFunction
	// OptXferInfoFunction receives progress reports (ProgressReporter).
	OptXferInfoFunction

	optSentinel
)

var optionNames = []string{
	"URL",
	"CUSTOMREQUEST",
	"NOBODY",
	"POST",
	"UPLOAD",
	"POSTFIELDS",
	"POSTFIELDSIZE",
	"INFILESIZE",
	"HTTPPOST",
	"HTTPHEADER",
	"HTTP200ALIASES",
	"RESOLVE",
	"SHARE",
	"TIMEOUT",
	"CONNECTTIMEOUT",
	"FOLLOWLOCATION",
	"MAXREDIRS",
	"FAILONERROR",
	"USERAGENT",
	"NOPROGRESS",
	"OPENSOCKETFUNCTION",
	"CLOSESOCKETFUNCTION",
	"READFUNCTION",
	"SEEKFUNCTION",
	"WRITEFUNCTION",
	"XFERINFOFUNCTION",
}

// String returns the option name.
func (opt Option) String() string {
	if opt < 0 || opt >= optSentinel {
		return fmt.Sprintf("Option(%d)", int(opt))
	}
	return optionNames[opt]
}

// options holds every option value of a handle.
type options struct {
	url            string
	customRequest  string
	noBody         bool
	post           bool
	upload         bool
	postFields     []byte
	postFieldSize  int64
	inFileSize     int64
	form           *Form
	headers        *StringList
	aliases        *StringList
	resolves       *StringList
	share          *Share
	timeout        time.Duration
	connectTimeout time.Duration
	followLocation bool
	maxRedirs      int
	failOnError    bool
	userAgent      string
	noProgress     bool

	opener   SocketOpener
	closer   SocketCloser
	reader   BodyReader
	seeker   BodySeeker
	writer   BodyWriter
	progress ProgressReporter
}

func defaultOptions() options {
	return options{
		postFieldSize: -1,
		inFileSize:    -1,
		maxRedirs:     -1,
		noProgress:    true,
	}
}

func (o *options) set(opt Option, value interface{}) error {
	var ok bool
	switch opt {
	case OptURL:
		o.url, ok = value.(string)
	case OptCustomRequest:
		o.customRequest, ok = value.(string)
	case OptNoBody:
		o.noBody, ok = value.(bool)
	case OptPost:
		o.post, ok = value.(bool)
	case OptUpload:
		o.upload, ok = value.(bool)
	case OptPostFields:
		ok = true
		switch v := value.(type) {
		case nil:
			o.postFields = nil
		case string:
			o.postFields = []byte(v)
		case []byte:
			o.postFields = append(make([]byte, 0, len(v)), v...)
		default:
			ok = false
		}
	case OptPostFieldSize:
		o.postFieldSize, ok = toInt64(value)
	case OptInFileSize:
		o.inFileSize, ok = toInt64(value)
	case OptHTTPPost:
		o.form, ok = value.(*Form)
		ok = ok || value == nil
	case OptHTTPHeader:
		o.headers, ok = listValue(value)
	case OptHTTP200Aliases:
		o.aliases, ok = listValue(value)
	case OptResolve:
		o.resolves, ok = listValue(value)
	case OptShare:
		o.share, ok = value.(*Share)
		ok = ok || value == nil
	case OptTimeout:
		o.timeout, ok = value.(time.Duration)
		ok = ok && o.timeout >= 0
	case OptConnectTimeout:
		o.connectTimeout, ok = value.(time.Duration)
		ok = ok && o.connectTimeout >= 0
	case OptFollowLocation:
		o.followLocation, ok = value.(bool)
	case OptMaxRedirs:
		o.maxRedirs, ok = value.(int)
	case OptFailOnError:
		o.failOnError, ok = value.(bool)
	case OptUserAgent:
		o.userAgent, ok = value.(string)
	case OptNoProgress:
		o.noProgress, ok = value.(bool)
	case OptOpenSocketFunction:
		o.opener, ok = value.(SocketOpener)
		ok = ok || value == nil
	case OptCloseSocketFunction:
		o.closer, ok = value.(SocketCloser)
		ok = ok || value == nil
	case OptReadFunction:
		o.reader, ok = value.(BodyReader)
		ok = ok || value == nil
	case OptSeekFunction:
		o.seeker, ok = value.(BodySeeker)
		ok = ok || value == nil
	case OptWriteFunction:
		o.writer, ok = value.(BodyWriter)
		ok = ok || value == nil
	case OptXferInfoFunction:
		o.progress, ok = value.(ProgressReporter)
		ok = ok || value == nil
	default:
		return &OptionError{Option: opt, Err: ErrUnknownOption}
	}
	if !ok {
		return &OptionError{Option: opt, Err: fmt.Errorf("%w: %T", ErrBadFunctionArgument, value)}
	}
	return nil
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func listValue(value interface{}) (*StringList, bool) {
	if value == nil {
		return nil, true
	}
	l, ok := value.(*StringList)
	return l, ok
}
