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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"appenderator/pkg/segment"
)

// LocalPusher "uploads" by copying the merged directory tree to a root
// directory outside the appenderator's own base persist directory,
// standing in for a deep-storage blob store in single-node deployments
// and tests.
type LocalPusher struct {
	Root string
}

// Push copies mergedDir into Root and returns its descriptor. When
// useUniquePath is true, a random path suffix guarantees a fresh
// location even for a repeated push of the same identifier (spec §4.4:
// "ignore the old descriptor and re-merge").
func (p LocalPusher) Push(ctx context.Context, mergedDir string, id segment.Identifier, numRows int64, useUniquePath bool) (segment.Descriptor, error) {
	select {
	case <-ctx.Done():
		return segment.Descriptor{}, ctx.Err()
	default:
	}

	name := id.DirName()
	if useUniquePath {
		suffix, err := randomSuffix()
		if err != nil {
			return segment.Descriptor{}, fmt.Errorf("deepstorage: generate unique suffix: %w", err)
		}
		name = name + "-" + suffix
	}
	dest := filepath.Join(p.Root, name)

	size, err := copyTree(mergedDir, dest)
	if err != nil {
		return segment.Descriptor{}, fmt.Errorf("deepstorage: local push: %w", err)
	}

	return segment.Descriptor{
		Identifier: id,
		NumRows:    numRows,
		Size:       size,
		Location:   dest,
		PushedAt:   time.Now().UTC(),
	}, nil
}

func randomSuffix() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func copyTree(srcDir, dstDir string) (int64, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		srcPath := filepath.Join(srcDir, e.Name())
		dstPath := filepath.Join(dstDir, e.Name())
		if e.IsDir() {
			n, err := copyTree(srcPath, dstPath)
			if err != nil {
				return 0, err
			}
			total += n
			continue
		}
		n, err := copyFile(srcPath, dstPath)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()
	buf := make([]byte, 1<<20)
	var n int64
	for {
		m, rerr := in.Read(buf)
		if m > 0 {
			if _, werr := out.Write(buf[:m]); werr != nil {
				return 0, werr
			}
			n += int64(m)
		}
		if rerr != nil {
			break
		}
	}
	return n, nil
}
