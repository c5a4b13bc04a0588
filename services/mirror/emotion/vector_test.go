// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package emotion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVector_Validate(t *testing.T) {
	tests := []struct {
		name    string
		v       Vector
		wantErr string
	}{
		{
			name: "all components in range",
			v:    Vector{Joy: 0.5, Calm: 0.3, Energy: 0.9, Melancholy: 0.1},
		},
		{
			name: "zero vector is valid",
			v:    Vector{},
		},
		{
			name: "bounds are inclusive",
			v:    Vector{Joy: 0, Calm: 1, Energy: 0, Melancholy: 1},
		},
		{
			name:    "negative component rejected",
			v:       Vector{Joy: -0.1, Calm: 0.5},
			wantErr: "joy must be between 0 and 1",
		},
		{
			name:    "component above one rejected",
			v:       Vector{Joy: 0.5, Melancholy: 1.2},
			wantErr: "melancholy must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVector_Dominant(t *testing.T) {
	tests := []struct {
		name string
		v    Vector
		want Kind
	}{
		{
			name: "clear winner",
			v:    Vector{Joy: 0.1, Calm: 0.2, Energy: 0.9, Melancholy: 0.3},
			want: Energy,
		},
		{
			name: "all equal resolves to joy",
			v:    Vector{Joy: 0.5, Calm: 0.5, Energy: 0.5, Melancholy: 0.5},
			want: Joy,
		},
		{
			name: "tie between calm and melancholy resolves to calm",
			v:    Vector{Joy: 0.1, Calm: 0.7, Energy: 0.2, Melancholy: 0.7},
			want: Calm,
		},
		{
			name: "zero vector resolves to joy",
			v:    Vector{},
			want: Joy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Dominant())
		})
	}
}

func TestVector_Intensity(t *testing.T) {
	v := Vector{Joy: 0.8, Calm: 0.6, Energy: 0.9, Melancholy: 0.2}
	assert.Equal(t, Energy, v.Dominant())
	assert.Equal(t, 0.9, v.Intensity())
}

func TestVector_Sum(t *testing.T) {
	v := Vector{Joy: 0.1, Calm: 0.2, Energy: 0.3, Melancholy: 0.4}
	assert.InDelta(t, 1.0, v.Sum(), 1e-12)
}
