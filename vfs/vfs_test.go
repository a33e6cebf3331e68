package vfs

import (
	"testing"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty path becomes root",
			input:    "",
			expected: "/",
		},
		{
			name:     "root stays root",
			input:    "/",
			expected: "/",
		},
		{
			name:     "relative path gets rooted",
			input:    "dir/file.txt",
			expected: "/dir/file.txt",
		},
		{
			name:     "trailing separator is dropped",
			input:    "/dir/",
			expected: "/dir",
		},
		{
			name:     "repeated separators collapse",
			input:    "//a///b",
			expected: "/a/b",
		},
		{
			name:     "dot segments are resolved",
			input:    "/a/./b/../c",
			expected: "/a/c",
		},
		{
			name:     "parent escapes are clamped at root",
			input:    "../../etc/passwd",
			expected: "/etc/passwd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanPath(tt.input); got != tt.expected {
				t.Errorf("CleanPath(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantParent string
		wantName   string
	}{
		{
			name:       "root is its own parent",
			input:      "/",
			wantParent: "/",
			wantName:   "",
		},
		{
			name:       "top level entry",
			input:      "/file.txt",
			wantParent: "/",
			wantName:   "file.txt",
		},
		{
			name:       "nested entry",
			input:      "/a/b/c.txt",
			wantParent: "/a/b",
			wantName:   "c.txt",
		},
		{
			name:       "uncleaned input is normalized first",
			input:      "a/b/",
			wantParent: "/a",
			wantName:   "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent, name := Split(tt.input)
			if parent != tt.wantParent || name != tt.wantName {
				t.Errorf("Split(%q) = (%q, %q), expected (%q, %q)",
					tt.input, parent, name, tt.wantParent, tt.wantName)
			}
		})
	}
}
