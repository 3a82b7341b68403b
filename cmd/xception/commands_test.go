package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelFlags_Selector(t *testing.T) {
	tests := []struct {
		flag string
		want any
	}{
		{"", nil},
		{"true", true},
		{"false", false},
		{"1", "1"},
		{"t", "t"},
		{"T", "T"},
		{"0", "0"},
		{"TRUE", "TRUE"},
		{"weights/x65.safetensors", "weights/x65.safetensors"},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			f := modelFlags{pretrained: tt.flag}
			assert.Equal(t, tt.want, f.selector())
		})
	}
}
