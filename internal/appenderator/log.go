// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package appenderator

import (
	"os"

	"appenderator/internal/applog"
)

// applogDefault is used by internal components that do not otherwise have
// a caller-supplied logger threaded through (e.g. the registry's
// non-fatal announce failure). SetLogger replaces it.
var applogDefault = applog.New(os.Stderr, "appenderator")

// SetLogger swaps the package-wide default logger, e.g. to route
// appenderator diagnostics through a caller's own log sink.
func SetLogger(l *applog.Logger) {
	if l != nil {
		applogDefault = l
	}
}
