// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	testCases := []struct {
		level       string
		development bool
		want        zapcore.Level
		valid       bool
	}{
		{"", false, zapcore.InfoLevel, true},
		{"debug", true, zapcore.DebugLevel, true},
		{"WARN", false, zapcore.WarnLevel, true},
		{"verbose", false, 0, false},
	}
	for _, tc := range testCases {
		logger, err := New(tc.level, tc.development)
		if (err == nil) != tc.valid {
			t.Errorf("New(%q): got error %v, want valid=%v", tc.level, err, tc.valid)
			continue
		}
		if err != nil {
			continue
		}
		if !logger.Core().Enabled(tc.want) {
			t.Errorf("New(%q): level %v disabled", tc.level, tc.want)
		}
		if tc.want > zapcore.DebugLevel && logger.Core().Enabled(tc.want-1) {
			t.Errorf("New(%q): level %v enabled", tc.level, tc.want-1)
		}
	}
}
