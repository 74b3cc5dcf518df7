/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package stringutil

import "strings"

// Slugify converts a display name into a DNS-1123 compatible name of
// at most maxLen characters: lowercase alphanumerics and '-', starting
// with a letter and ending with an alphanumeric.
func Slugify(s string, maxLen int) string {
	result := strings.ToLower(s)

	replacer := strings.NewReplacer("/", "-", ":", "-", ".", "-", "_", "-", " ", "-")
	result = replacer.Replace(result)

	var cleaned strings.Builder
	for _, r := range result {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			cleaned.WriteRune(r)
		}
	}
	result = cleaned.String()

	for strings.Contains(result, "--") {
		result = strings.ReplaceAll(result, "--", "-")
	}
	result = strings.Trim(result, "-")

	if len(result) > 0 && result[0] >= '0' && result[0] <= '9' {
		result = "n" + result
	}
	if maxLen > 0 && len(result) > maxLen {
		result = strings.TrimSuffix(result[:maxLen], "-")
	}
	if result == "" {
		result = "job"
	}
	return result
}

// FirstN returns the first n characters of s.
func FirstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// SplitPair splits s on the first occurrence of sep.
func SplitPair(s, sep string) (string, string, bool) {
	idx := strings.Index(s, sep)
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+len(sep):], true
}
