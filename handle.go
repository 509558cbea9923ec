// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package evhttp

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogama/evhttp/engine"
	"github.com/gogama/evhttp/stats"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// A CompletionFunc receives the outcome of a transfer. A nil error
// means the transfer succeeded. Completion functions run on the
// coordinator's loop and must not block.
type CompletionFunc func(err error)

// A ProgressFunc is told about transfer progress. Returning false
// aborts the transfer with ErrAbortedByCallback.
type ProgressFunc func(dlTotal, dlNow, ulTotal, ulNow int64) bool

// EmptyHeaderAction says what AddHeader does with an empty value.
type EmptyHeaderAction int

const (
	// SendEmptyHeader sends the header with an empty value.
	SendEmptyHeader EmptyHeaderAction = iota
	// DoNotSendEmptyHeader suppresses the header, including any
	// default value the engine would send for it.
	DoNotSendEmptyHeader
)

// StringList, Form and Share are option values which may be shared by
// many handles.
type (
	StringList = engine.StringList
	Form       = engine.Form
	Share      = engine.Share
)

// NewStringList returns a StringList holding items.
func NewStringList(items ...string) *StringList {
	return engine.NewStringList(items...)
}

// Timings records when the latest transfer of a handle reached each
// stage.
type Timings = stats.Timings

// A HandleOption configures a detached Handle.
type HandleOption func(*handleConfig)

type handleConfig struct {
	engine engine.Engine
	log    logrus.FieldLogger
}

// WithEngine sets the engine which creates the handle's engine handle.
// The default is engine.Native().
func WithEngine(e engine.Engine) HandleOption {
	return func(c *handleConfig) {
		c.engine = e
	}
}

// WithLogger sets the handle's logger. The default is the logrus
// standard logger.
func WithLogger(log logrus.FieldLogger) HandleOption {
	return func(c *handleConfig) {
		c.log = log
	}
}

// A Handle is one configurable, restartable HTTP transfer.
//
// A Handle is either detached, in which case transfers are run with the
// blocking Perform method, or bound to exactly one Coordinator for its
// whole life, in which case transfers are started with Start and
// complete asynchronously on the coordinator's loop.
//
// Setters may be called at any time and from any goroutine. Their
// effect applies from the next transfer started.
type Handle struct {
	id    uuid.UUID
	log   *logrus.Entry
	coord *Coordinator
	easy  engine.Handle

	counter atomic.Uint64

	mu          sync.Mutex
	url         string
	source      io.Reader
	sink        io.Writer
	progress    ProgressFunc
	form        *Form
	postFields  []byte
	headers     *StringList
	aliases     *StringList
	resolves    *StringList
	share       *Share
	stopPerform context.CancelFunc
	closed      bool

	timingsMu sync.Mutex
	timings   Timings

	// Owned by the coordinator's loop.
	cancelledMax uint64
	current      *transfer
}

// NewHandle creates a detached handle.
func NewHandle(opts ...HandleOption) (*Handle, error) {
	cfg := handleConfig{
		engine: engine.Native(),
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	easy, err := cfg.engine.NewHandle()
	if err != nil {
		return nil, err
	}
	return newHandle(easy, nil, cfg.log), nil
}

func newHandle(easy engine.Handle, c *Coordinator, log logrus.FieldLogger) *Handle {
	id := uuid.New()
	return &Handle{
		id:    id,
		log:   log.WithField("handle", id.String()),
		coord: c,
		easy:  easy,
	}
}

// Bind returns a clone of h bound to c. The clone has the same option
// values as h, including references to the same shared lists, but its
// own identity and request sequence.
func (h *Handle) Bind(c *Coordinator) (*Handle, error) {
	easy, err := h.easy.Duplicate()
	if err != nil {
		return nil, err
	}
	b := newHandle(easy, c, c.log)
	h.mu.Lock()
	defer h.mu.Unlock()
	b.url = h.url
	b.source = h.source
	b.sink = h.sink
	b.progress = h.progress
	b.form = h.form
	b.postFields = h.postFields
	b.headers = h.headers
	b.aliases = h.aliases
	b.resolves = h.resolves
	b.share = h.share
	return b, nil
}

// ID returns the handle's identity, which also appears in its log
// entries.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Coordinator returns the coordinator the handle is bound to, or nil
// if it is detached.
func (h *Handle) Coordinator() *Coordinator {
	return h.coord
}

// SetURL sets the URL to transfer.
func (h *Handle) SetURL(rawURL string) error {
	h.mu.Lock()
	h.url = rawURL
	h.mu.Unlock()
	return h.easy.SetOption(engine.OptURL, rawURL)
}

// URL returns the URL set by SetURL.
func (h *Handle) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// SetSource sets the request body source. If r also implements
// io.Seeker, the engine can rewind it to resend the body, for example
// when following a redirect.
func (h *Handle) SetSource(r io.Reader) error {
	h.mu.Lock()
	h.source = r
	h.mu.Unlock()
	return nil
}

// SetSink sets the destination of the response body. If w has a
// Flush() error method, it is called when each transfer completes. A
// nil sink discards the body.
func (h *Handle) SetSink(w io.Writer) error {
	h.mu.Lock()
	h.sink = w
	h.mu.Unlock()
	return nil
}

// SetPostFields makes the request a POST with body as its complete
// body.
func (h *Handle) SetPostFields(body []byte) error {
	b := append(make([]byte, 0, len(body)), body...)
	h.mu.Lock()
	h.postFields = b
	h.mu.Unlock()
	if err := h.easy.SetOption(engine.OptPostFields, b); err != nil {
		return err
	}
	return h.easy.SetOption(engine.OptPostFieldSize, int64(len(b)))
}

// SetForm makes the request a multipart POST of f. A nil form unsets
// it.
func (h *Handle) SetForm(f *Form) error {
	h.mu.Lock()
	h.form = f
	h.mu.Unlock()
	if f == nil {
		return h.easy.SetOption(engine.OptHTTPPost, nil)
	}
	return h.easy.SetOption(engine.OptHTTPPost, f)
}

// HasPostData reports whether post fields or a form are set.
func (h *Handle) HasPostData() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.postFields) > 0 || h.form != nil
}

// AddHeader adds a request header. An empty value is sent or
// suppressed according to action.
func (h *Handle) AddHeader(name, value string, action EmptyHeaderAction) error {
	if value == "" && action == SendEmptyHeader {
		return h.AddHeaderLine(name + ";")
	}
	return h.AddHeaderLine(name + ": " + value)
}

// AddHeaderLine adds a raw header line in one of the forms
// "Name: value", "Name;" (empty value) or "Name:" (suppress).
func (h *Handle) AddHeaderLine(line string) error {
	h.mu.Lock()
	if h.headers == nil {
		h.headers = NewStringList()
	}
	h.headers.Add(line)
	l := h.headers
	h.mu.Unlock()
	return h.easy.SetOption(engine.OptHTTPHeader, l)
}

// SetHeaders replaces the header list. The list may be shared with
// other handles.
func (h *Handle) SetHeaders(l *StringList) error {
	h.mu.Lock()
	h.headers = l
	h.mu.Unlock()
	return h.easy.SetOption(engine.OptHTTPHeader, listOption(l))
}

// Headers returns the header lines currently set.
func (h *Handle) Headers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headers.Items()
}

// AddHTTP200Alias adds a status code or status line which
// SetFailOnError treats as success.
func (h *Handle) AddHTTP200Alias(alias string) error {
	h.mu.Lock()
	if h.aliases == nil {
		h.aliases = NewStringList()
	}
	h.aliases.Add(alias)
	l := h.aliases
	h.mu.Unlock()
	return h.easy.SetOption(engine.OptHTTP200Aliases, l)
}

// SetHTTP200Aliases replaces the alias list.
func (h *Handle) SetHTTP200Aliases(l *StringList) error {
	h.mu.Lock()
	h.aliases = l
	h.mu.Unlock()
	return h.easy.SetOption(engine.OptHTTP200Aliases, listOption(l))
}

// HTTP200Aliases returns the aliases currently set.
func (h *Handle) HTTP200Aliases() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aliases.Items()
}

// AddResolve adds a host resolution override of the form
// "host:port:addr[,addr...]".
func (h *Handle) AddResolve(entry string) error {
	h.mu.Lock()
	if h.resolves == nil {
		h.resolves = NewStringList()
	}
	h.resolves.Add(entry)
	l := h.resolves
	h.mu.Unlock()
	return h.easy.SetOption(engine.OptResolve, l)
}

// SetResolves replaces the resolve list.
func (h *Handle) SetResolves(l *StringList) error {
	h.mu.Lock()
	h.resolves = l
	h.mu.Unlock()
	return h.easy.SetOption(engine.OptResolve, listOption(l))
}

// Resolves returns the resolve overrides currently set.
func (h *Handle) Resolves() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resolves.Items()
}

// SetShare sets the state shared with other handles. A nil share
// unsets it.
func (h *Handle) SetShare(s *Share) error {
	h.mu.Lock()
	h.share = s
	h.mu.Unlock()
	if s == nil {
		return h.easy.SetOption(engine.OptShare, nil)
	}
	return h.easy.SetOption(engine.OptShare, s)
}

// SetProgressCallback installs f as the progress callback.
func (h *Handle) SetProgressCallback(f ProgressFunc) error {
	if f == nil {
		return h.UnsetProgressCallback()
	}
	h.mu.Lock()
	h.progress = f
	h.mu.Unlock()
	return h.easy.SetOption(engine.OptNoProgress, false)
}

// UnsetProgressCallback removes the progress callback.
func (h *Handle) UnsetProgressCallback() error {
	h.mu.Lock()
	h.progress = nil
	h.mu.Unlock()
	return h.easy.SetOption(engine.OptNoProgress, true)
}

// SetCustomRequest replaces the request method. An empty method
// restores the default.
func (h *Handle) SetCustomRequest(method string) error {
	return h.easy.SetOption(engine.OptCustomRequest, method)
}

// SetNoBody makes the request a HEAD request.
func (h *Handle) SetNoBody(noBody bool) error {
	return h.easy.SetOption(engine.OptNoBody, noBody)
}

// SetPost makes the request a POST request. Without post fields or a
// form, the body is read from the source.
func (h *Handle) SetPost(post bool) error {
	return h.easy.SetOption(engine.OptPost, post)
}

// SetUpload makes the request a PUT request with its body read from the
// source.
func (h *Handle) SetUpload(upload bool) error {
	return h.easy.SetOption(engine.OptUpload, upload)
}

// SetInFileSize sets the length of the body read from the source; -1
// means unknown.
func (h *Handle) SetInFileSize(n int64) error {
	return h.easy.SetOption(engine.OptInFileSize, n)
}

// SetTimeout bounds each whole transfer. Zero means no limit.
func (h *Handle) SetTimeout(d time.Duration) error {
	return h.easy.SetOption(engine.OptTimeout, d)
}

// SetConnectTimeout bounds each connection attempt. Zero means no
// limit.
func (h *Handle) SetConnectTimeout(d time.Duration) error {
	return h.easy.SetOption(engine.OptConnectTimeout, d)
}

// SetFollowLocation makes transfers follow redirects.
func (h *Handle) SetFollowLocation(follow bool) error {
	return h.easy.SetOption(engine.OptFollowLocation, follow)
}

// SetMaxRedirects bounds followed redirects; -1 restores the default.
func (h *Handle) SetMaxRedirects(n int) error {
	return h.easy.SetOption(engine.OptMaxRedirs, n)
}

// SetFailOnError makes transfers fail when the response status is 400
// or above, unless it matches an HTTP 200 alias.
func (h *Handle) SetFailOnError(fail bool) error {
	return h.easy.SetOption(engine.OptFailOnError, fail)
}

// SetUserAgent sets the User-Agent header.
func (h *Handle) SetUserAgent(ua string) error {
	return h.easy.SetOption(engine.OptUserAgent, ua)
}

// RequestNumber returns the sequence number of the latest transfer
// started on the handle.
func (h *Handle) RequestNumber() uint64 {
	return h.counter.Load()
}

// Timings returns the stage times of the latest transfer.
func (h *Handle) Timings() Timings {
	h.timingsMu.Lock()
	defer h.timingsMu.Unlock()
	return h.timings
}

// ResponseCode returns the status code of the latest completed
// transfer, or zero if there was no response.
func (h *Handle) ResponseCode() int {
	return h.easy.Info().ResponseCode
}

// ResponseHeader returns the response header of the latest completed
// transfer.
func (h *Handle) ResponseHeader() http.Header {
	return h.easy.Info().Header
}

// EffectiveURL returns the last URL requested by the latest completed
// transfer, after any redirects.
func (h *Handle) EffectiveURL() string {
	return h.easy.Info().EffectiveURL
}

// Info returns everything the engine knows about the latest completed
// transfer.
func (h *Handle) Info() engine.Info {
	return h.easy.Info()
}

func (h *Handle) markStart() {
	h.timingsMu.Lock()
	h.timings = Timings{Start: time.Now()}
	h.timingsMu.Unlock()
}

func (h *Handle) markOpenSocket() {
	h.timingsMu.Lock()
	if h.timings.OpenSocket.IsZero() {
		h.timings.OpenSocket = time.Now()
	}
	h.timingsMu.Unlock()
}

func (h *Handle) markComplete() {
	h.timingsMu.Lock()
	h.timings.Complete = time.Now()
	h.timingsMu.Unlock()
}

// listOption converts a possibly nil list into an option value,
// avoiding a typed nil.
func listOption(l *StringList) interface{} {
	if l == nil {
		return nil
	}
	return l
}
