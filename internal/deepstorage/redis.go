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

package deepstorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"appenderator/pkg/segment"
)

// redisPushMarkerScript records with SETNX that a given location has been
// pushed, the same idiom the ratelimiter's Redis persister used for
// commit markers: it returns 1 the first time and 0 on later calls. Push
// runs it after the files are written and does not act on its result.
const redisPushMarkerScript = `
local markerKey = KEYS[1]
local set = redis.call('SETNX', markerKey, ARGV[1])
if set == 1 then
  return 1
else
  return 0
end
`

// RedisPusher uploads a merged segment's files as blobs under
// <prefix>/<name>:<relpath> keys in Redis, standing in for a
// genuine deep-storage client (S3, GCS, HDFS) behind the same Pusher
// interface.
type RedisPusher struct {
	Client    *redis.Client
	KeyPrefix string // defaults to "deepstorage" when empty
	TTL       time.Duration
}

func (p RedisPusher) prefix() string {
	if p.KeyPrefix != "" {
		return p.KeyPrefix
	}
	return "deepstorage"
}

// Push reads every file under mergedDir and writes it to Redis under a
// location key derived from id (or a random suffix when useUniquePath is
// set), then records a push marker for that location. A repeated push of
// the same location writes every file again; the marker does not stop it.
func (p RedisPusher) Push(ctx context.Context, mergedDir string, id segment.Identifier, numRows int64, useUniquePath bool) (segment.Descriptor, error) {
	name := id.DirName()
	if useUniquePath {
		suffix, err := randomSuffix()
		if err != nil {
			return segment.Descriptor{}, fmt.Errorf("deepstorage: generate unique suffix: %w", err)
		}
		name = name + "-" + suffix
	}
	location := fmt.Sprintf("%s/%s", p.prefix(), name)

	var size int64
	err := filepath.WalkDir(mergedDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(mergedDir, path)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s:%s", location, rel)
		if err := p.Client.Set(ctx, key, data, p.TTL).Err(); err != nil {
			return fmt.Errorf("redis set %s: %w", key, err)
		}
		size += int64(len(data))
		return nil
	})
	if err != nil {
		return segment.Descriptor{}, fmt.Errorf("deepstorage: redis push: %w", err)
	}

	markerKey := fmt.Sprintf("%s:marker", location)
	if err := p.Client.Eval(ctx, redisPushMarkerScript, []string{markerKey}, location).Err(); err != nil {
		return segment.Descriptor{}, fmt.Errorf("deepstorage: redis push marker: %w", err)
	}

	return segment.Descriptor{
		Identifier: id,
		NumRows:    numRows,
		Size:       size,
		Location:   location,
		PushedAt:   time.Now().UTC(),
	}, nil
}
