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

import "appenderator/pkg/segment"

// QueryRunner is the minimal shape a supplied walker must implement to
// answer queries over a set of intervals or segments. Its actual query
// language is out of scope (spec §1); the core only forwards to it.
type QueryRunner interface {
	RunQuery(query any) (any, error)
}

// Walker resolves a QueryRunner for a set of intervals or segment
// identifiers. Supplying one is optional; when unset, C8 rejects queries
// (spec §4.8).
type Walker interface {
	QueryRunnerForIntervals(intervals []segment.Interval) (QueryRunner, error)
	QueryRunnerForSegments(ids []segment.Identifier) (QueryRunner, error)
}

// queryForwarder implements component C8: it holds an optional walker
// and delegates to it, or reports ErrQueriesNotSupported when unset.
type queryForwarder struct {
	walker Walker
}

// GetQueryRunnerForIntervals forwards to the configured walker.
func (a *Appenderator) GetQueryRunnerForIntervals(intervals []segment.Interval) (QueryRunner, error) {
	if a.queries.walker == nil {
		return nil, ErrQueriesNotSupported
	}
	return a.queries.walker.QueryRunnerForIntervals(intervals)
}

// GetQueryRunnerForSegments forwards to the configured walker.
func (a *Appenderator) GetQueryRunnerForSegments(ids []segment.Identifier) (QueryRunner, error) {
	if a.queries.walker == nil {
		return nil, ErrQueriesNotSupported
	}
	return a.queries.walker.QueryRunnerForSegments(ids)
}
