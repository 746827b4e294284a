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

// Package segment defines the identifier and descriptor types shared by the
// appenderator, its on-disk layout, and the deep storage pusher.
package segment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Interval is a half-open timestamp range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (iv Interval) String() string {
	return iv.Start.UTC().Format(time.RFC3339Nano) + "/" + iv.End.UTC().Format(time.RFC3339Nano)
}

// Equal reports whether two intervals cover the exact same range.
func (iv Interval) Equal(other Interval) bool {
	return iv.Start.Equal(other.Start) && iv.End.Equal(other.End)
}

// ShardSpec opaquely names a segment's shard within its interval. Its
// contents are not interpreted by the appenderator core.
type ShardSpec struct {
	Type      string `json:"type"`
	Partition int    `json:"partition"`
}

// Identifier is the tuple {dataSource, interval, version, shardSpec} that
// uniquely names a segment. It is immutable once constructed.
type Identifier struct {
	DataSource string    `json:"dataSource"`
	Interval   Interval  `json:"interval"`
	Version    string    `json:"version"`
	Shard      ShardSpec `json:"shardSpec"`
}

// Equal reports field-wise equality over all four tuple members.
func (id Identifier) Equal(other Identifier) bool {
	return id.DataSource == other.DataSource &&
		id.Interval.Equal(other.Interval) &&
		id.Version == other.Version &&
		id.Shard == other.Shard
}

// String renders a canonical, human-readable identifier. It is not
// guaranteed filesystem-safe on its own — use DirName for on-disk paths.
func (id Identifier) String() string {
	return fmt.Sprintf("%s_%s_%s_%s-%d", id.DataSource, id.Interval, id.Version, id.Shard.Type, id.Shard.Partition)
}

// dirNameEscaper percent-escapes, within a single identifier field, the
// characters that are unsafe in filesystem path components, plus "_"
// (the field separator DirName joins with) and "%" (the escape itself).
var dirNameEscaper = strings.NewReplacer(
	"%", "%25",
	"_", "%5F",
	"/", "%2F",
	":", "%3A",
	" ", "%20",
	"\\", "%5C",
)

// DirName derives a filesystem-safe, unique-per-tuple directory name for
// this identifier, used as the sink's subdirectory under the base persist
// directory (spec §4.6). Each tuple field is escaped on its own and the
// results are joined with "_", so distinct tuples never share a name.
func (id Identifier) DirName() string {
	fields := []string{id.DataSource, id.Interval.String(), id.Version, id.Shard.Type, strconv.Itoa(id.Shard.Partition)}
	for i, f := range fields {
		fields[i] = dirNameEscaper.Replace(f)
	}
	return strings.Join(fields, "_")
}

// MarshalIdentifier renders the canonical JSON form written to
// identifier.json.
func MarshalIdentifier(id Identifier) ([]byte, error) {
	return json.MarshalIndent(id, "", "  ")
}

// UnmarshalIdentifier parses an identifier.json payload.
func UnmarshalIdentifier(data []byte) (Identifier, error) {
	var id Identifier
	if err := json.Unmarshal(data, &id); err != nil {
		return Identifier{}, fmt.Errorf("unmarshal identifier: %w", err)
	}
	return id, nil
}

// Descriptor is the receipt returned by a successful deep storage push and
// persisted as descriptor.json (spec §6 on-disk format).
type Descriptor struct {
	Identifier Identifier `json:"identifier"`
	NumRows    int64      `json:"numRows"`
	Size       int64      `json:"size"`
	Location   string     `json:"location"`
	PushedAt   time.Time  `json:"pushedAt"`
}

// Equal compares descriptors field-wise, ignoring PushedAt.
func (d Descriptor) Equal(other Descriptor) bool {
	return d.Identifier.Equal(other.Identifier) &&
		d.NumRows == other.NumRows &&
		d.Size == other.Size &&
		d.Location == other.Location
}

func (d Descriptor) String() string {
	return d.Identifier.String() + " rows=" + strconv.FormatInt(d.NumRows, 10) + " at=" + d.Location
}
