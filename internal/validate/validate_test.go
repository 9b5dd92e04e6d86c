// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_CollectsAllErrors(t *testing.T) {
	v := New()
	v.Positive("a", 0)
	v.OneOf("b", "x", []string{"y", "z"})
	v.FloatRange("c", 1.5, 0, 1)
	v.PositiveDuration("d", 0)

	require.False(t, v.IsValid())
	err := v.Err()
	require.Error(t, err)

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	fields := make([]string, 0, len(ve.Errors()))
	for _, e := range ve.Errors() {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, fields)
	assert.Contains(t, err.Error(), "validation failed for b")
}

func TestValidator_ValidIsNil(t *testing.T) {
	v := New()
	v.Range("r", 5, 1, 10)
	v.NonNegative("n", 0)
	v.NotEmpty("s", "x")
	v.ListenAddr("addr", ":8088")
	v.URL("u", "http://influx:8086", []string{"http", "https"})
	assert.True(t, v.IsValid())
	assert.NoError(t, v.Err())
}

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{"https", "https://example.com", true},
		{"empty", "", false},
		{"no host", "http://", false},
		{"bad scheme", "ftp://example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("u", tt.value, []string{"http", "https"})
			assert.Equal(t, tt.ok, v.IsValid())
		})
	}
}

func TestValidator_ListenAddr(t *testing.T) {
	for addr, ok := range map[string]bool{
		":8088":          true,
		"127.0.0.1:9000": true,
		"localhost":      false,
		":99999":         false,
		":http":          false,
	} {
		v := New()
		v.ListenAddr("addr", addr)
		assert.Equal(t, ok, v.IsValid(), addr)
	}
}

func TestValidator_Directory(t *testing.T) {
	root := t.TempDir()

	v := New()
	created := filepath.Join(root, "new", "dir")
	v.Directory("dir", created, false)
	require.True(t, v.IsValid())
	info, err := os.Stat(created)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	v = New()
	v.Directory("dir", filepath.Join(root, "missing"), true)
	assert.False(t, v.IsValid())

	file := filepath.Join(root, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	v = New()
	v.Directory("dir", file, false)
	assert.False(t, v.IsValid())

	v = New()
	v.Directory("dir", "a/../b", false)
	assert.False(t, v.IsValid())
}

func TestValidator_Custom(t *testing.T) {
	v := New()
	v.Custom("c", 3, func(any) error { return errors.New("nope") })
	require.Len(t, v.Errors(), 1)
	assert.Equal(t, "nope", v.Errors()[0].Message)
}
