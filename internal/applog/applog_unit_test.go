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

package applog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogger_InfoIncludesPrefixAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "persist")
	l.Info("hello %s", "world")

	out := buf.String()
	if !strings.Contains(out, "INFO") {
		t.Fatalf("expected INFO level in output, got %q", out)
	}
	if !strings.Contains(out, "[persist]") {
		t.Fatalf("expected prefix in output, got %q", out)
	}
	if !strings.Contains(out, "hello world") {
		t.Fatalf("expected formatted message in output, got %q", out)
	}
}

func TestLogger_WarnAndError(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "push")
	l.Warn("warning %d", 1)
	l.Error("error %d", 2)

	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "warning 1") {
		t.Fatalf("expected warn line, got %q", out)
	}
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "error 2") {
		t.Fatalf("expected error line, got %q", out)
	}
}

func TestLogger_EmptyPrefixOmitsBrackets(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "")
	l.Info("no prefix here")

	out := buf.String()
	if strings.Contains(out, "[]") {
		t.Fatalf("expected no empty-bracket prefix, got %q", out)
	}
	if !strings.Contains(out, "no prefix here") {
		t.Fatalf("expected message in output, got %q", out)
	}
}

func TestLogger_NilWriterDefaultsToStdout(t *testing.T) {
	l := New(nil, "x")
	if l == nil {
		t.Fatalf("expected New to return a non-nil logger with a nil writer")
	}
}
