// Copyright 2016 IBM Corporation
//
//   Licensed under the Apache License, Version 2.0 (the "License");
//   you may not use this file except in compliance with the License.
//   You may obtain a copy of the License at
//
//       http://www.apache.org/licenses/LICENSE-2.0
//
//   Unless required by applicable law or agreed to in writing, software
//   distributed under the License is distributed on an "AS IS" BASIS,
//   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//   See the License for the specific language governing permissions and
//   limitations under the License.

package middleware

import (
	"bufio"
	"compress/gzip"
	"net"
	"net/http"
	"strings"

	"github.com/ant0ine/go-json-rest/rest"
)

// GzipMiddleware compresses response payloads for clients that advertise
// gzip support in Accept-Encoding, and leaves the response untouched for
// everyone else.
type GzipMiddleware struct{}

// MiddlewareFunc makes GzipMiddleware implement the Middleware interface.
func (mw *GzipMiddleware) MiddlewareFunc(h rest.HandlerFunc) rest.HandlerFunc {
	return func(w rest.ResponseWriter, r *rest.Request) {
		// Caches must vary on the encoding even when this particular
		// response goes out uncompressed.
		w.Header().Add("Vary", "Accept-Encoding")

		if !acceptsGzip(r) {
			h(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		compressed := &compressedWriter{ResponseWriter: w}
		h(compressed, r)
		compressed.close()
	}
}

// compressedWriter funnels the response body through a gzip.Writer created
// on first Write, so handlers that produce no body never emit a gzip frame.
type compressedWriter struct {
	rest.ResponseWriter
	headerSent bool
	gz         *gzip.Writer
}

func (w *compressedWriter) WriteHeader(code int) {
	w.ResponseWriter.WriteHeader(code)
	w.headerSent = true
}

// WriteJson encodes the value and sends it through the compressed body.
func (w *compressedWriter) WriteJson(v interface{}) error {
	payload, err := w.EncodeJson(v)
	if err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// Write implements http.ResponseWriter over the gzip stream.
func (w *compressedWriter) Write(b []byte) (int, error) {
	if !w.headerSent {
		w.WriteHeader(http.StatusOK)
	}
	if w.gz == nil {
		w.gz = gzip.NewWriter(w.ResponseWriter.(http.ResponseWriter))
	}
	n, err := w.gz.Write(b)
	if err != nil {
		return n, err
	}
	return n, w.gz.Flush()
}

// Flush implements http.Flusher for streaming handlers.
func (w *compressedWriter) Flush() {
	if !w.headerSent {
		w.WriteHeader(http.StatusOK)
	}
	w.ResponseWriter.(http.Flusher).Flush()
}

// CloseNotify implements http.CloseNotifier.
func (w *compressedWriter) CloseNotify() <-chan bool {
	return w.ResponseWriter.(http.CloseNotifier).CloseNotify()
}

// Hijack implements http.Hijacker.
func (w *compressedWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.(http.Hijacker).Hijack()
}

// close terminates the gzip stream, if a body was ever written.
func (w *compressedWriter) close() {
	if w.gz != nil {
		w.gz.Close()
	}
}

func acceptsGzip(r *rest.Request) bool {
	for _, header := range r.Header["Accept-Encoding"] {
		for _, encoding := range strings.Split(header, ",") {
			if strings.TrimSpace(encoding) == "gzip" {
				return true
			}
		}
	}
	return false
}
