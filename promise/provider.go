// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package promise

import (
	"sync"
)

// The registry is process-wide. The mutex only keeps reads and writes memory safe; unrelated
// goroutines calling Set concurrently still race and the last write wins.
var (
	registryMu sync.RWMutex
	active     Library
)

// Get returns the active Library, or Goroutine when none has been set.
func Get() Library {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if active == nil {
		return Goroutine
	}
	return active
}

// Set installs lib as the active Library. Set(nil) restores the default. Futures created before
// the call keep the Library that created them.
func Set(lib Library) {
	registryMu.Lock()
	defer registryMu.Unlock()

	active = lib
}

// Resolve returns lib when it is non-nil and the active Library otherwise. It is how components
// with an injected Library fall back to the registry.
func Resolve(lib Library) Library {
	if lib != nil {
		return lib
	}
	return Get()
}
