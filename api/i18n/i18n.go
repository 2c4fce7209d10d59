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

// Package i18n keeps user visible messages out of the code so they can be
// translated per locale
package i18n

import (
	"path/filepath"

	"github.com/ant0ine/go-json-rest/rest"
	"github.com/nicksnyder/go-i18n/i18n"
	log "github.com/sirupsen/logrus"
)

const (
	fallbackLocale = "en-US"

	acceptLanguageHeader = "Accept-Language"
	requestIDHeader      = "REQUEST_ID" // copied to avoid cyclic dependency between middleware and i18n
)

// LoadLocales loads every translation file found under the given directory
func LoadLocales(path string) error {
	log.WithField("path", path).Info("Loading language files from directory")

	filenames, err := filepath.Glob(filepath.Join(path, "*.json"))
	if err != nil {
		return err
	}

	for _, filename := range filenames {
		abs, err := filepath.Abs(filename)
		if err != nil {
			return err
		}

		log.WithField("path", abs).Debug("Loading locale")
		if err := i18n.LoadTranslationFile(abs); err != nil {
			return err
		}
	}

	return nil
}

// TranslateFunc returns a translator for the request's Accept-Language,
// falling back to en-US. For the common case, calling i18n.Error() should
// suffice
func TranslateFunc(req *rest.Request) i18n.TranslateFunc {
	// The go-i18n internals already handle weighted language matching, so
	// the header value is passed through as-is.
	locale := req.Header.Get(acceptLanguageHeader)
	T, err := i18n.Tfunc(locale, fallbackLocale)
	if err != nil {
		log.WithFields(log.Fields{
			"error":                  err,
			"request_id":             req.Header.Get(requestIDHeader),
			"accept_language_header": locale,
		}).Error("No translation function for request locale")
	}
	return T
}

// Error writes a JSON error response, '{"Error":"error message"}', where
// the message is the translation of 'id' parameterized by 'args'
func Error(r *rest.Request, w rest.ResponseWriter, code int, id string, args ...interface{}) {
	T := TranslateFunc(r)
	rest.Error(w, T(id, args...), code)
}

// SupressTestingErrorMessages seeds a one-entry en-US locale so tests that
// never call LoadLocales do not log translation errors. Call it from init().
func SupressTestingErrorMessages() {
	_ = i18n.ParseTranslationFileBytes("en-US.json", []byte(`[{"id":"test", "translation":"message"}]`))
}
