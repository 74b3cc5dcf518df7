/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package stringutil

import (
	"testing"

	"gotest.tools/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{
			name:     "mixed case with separators",
			input:    "Train/LLaMA_70B v2.1",
			maxLen:   63,
			expected: "train-llama-70b-v2-1",
		},
		{
			name:     "leading digit gets prefixed",
			input:    "7b-finetune",
			maxLen:   63,
			expected: "n7b-finetune",
		},
		{
			name:     "truncation drops trailing dash",
			input:    "very-long-name",
			maxLen:   10,
			expected: "very-long",
		},
		{
			name:     "only symbols falls back",
			input:    "///",
			maxLen:   63,
			expected: "job",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slugify(tt.input, tt.maxLen))
		})
	}
}

func TestSplitPair(t *testing.T) {
	user, token, ok := SplitPair("alice:s3cret:x", ":")
	assert.Assert(t, ok)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "s3cret:x", token)

	_, _, ok = SplitPair("no-separator", ":")
	assert.Assert(t, !ok)
}

func TestFirstN(t *testing.T) {
	assert.Equal(t, "abc", FirstN("abcdef", 3))
	assert.Equal(t, "ab", FirstN("ab", 5))
}
