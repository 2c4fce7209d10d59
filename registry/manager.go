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

package registry

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/auth"
	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/store"
	"github.com/amalgam8/vigil/utils/logging"
)

// Manager hands out per-namespace Registry instances over a shared store.
// Namespaces are isolated through key prefixing; registries are created
// lazily on first use.
type Manager struct {
	store      store.Store
	conf       Config
	registries map[auth.Namespace]*Registry
	logger     *log.Entry
	sync.Mutex
}

// NewManager creates a Manager over the given store. The configuration acts
// as a template for per-namespace registries; its Namespace field is ignored.
func NewManager(s store.Store, conf *Config) (*Manager, error) {
	if s == nil {
		return nil, fault.New(fault.Validation, "registry manager requires a backing store")
	}
	if conf == nil {
		conf = &Config{}
	}

	return &Manager{
		store:      s,
		conf:       *conf,
		registries: make(map[auth.Namespace]*Registry),
		logger:     logging.GetLogger(module),
	}, nil
}

// Registry returns the registry scoped to the given namespace, creating it
// on first use.
func (m *Manager) Registry(namespace auth.Namespace) (*Registry, error) {
	m.Lock()
	defer m.Unlock()

	if r, exists := m.registries[namespace]; exists {
		return r, nil
	}

	conf := m.conf
	conf.Namespace = namespace
	r, err := New(m.store, &conf)
	if err != nil {
		return nil, err
	}

	m.logger.Debugf("Created registry for namespace %s", namespace)
	m.registries[namespace] = r
	return r, nil
}
