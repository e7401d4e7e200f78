package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/common"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		raw         RawThread
		want        []string
		expectError bool
	}{
		{
			name: "two distinct users",
			raw:  RawThread{InitiatorID: "u1", ResponderID: "u2"},
			want: []string{"u1", "u2"},
		},
		{
			name: "business id never included",
			raw:  RawThread{InitiatorID: "u1", ResponderID: "u2", BusinessID: "biz_9"},
			want: []string{"u1", "u2"},
		},
		{
			name: "self conversation collapses to one",
			raw:  RawThread{InitiatorID: "u1", ResponderID: "u1"},
			want: []string{"u1"},
		},
		{
			name: "missing responder",
			raw:  RawThread{InitiatorID: "u1"},
			want: []string{"u1"},
		},
		{
			name: "missing initiator",
			raw:  RawThread{ResponderID: "u2"},
			want: []string{"u2"},
		},
		{
			name:        "only a business id",
			raw:         RawThread{BusinessID: "biz_9"},
			expectError: true,
		},
		{
			name:        "all empty",
			raw:         RawThread{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.raw)

			if tt.expectError {
				assert.ErrorIs(t, err, common.ErrInvalidParticipants)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveInsertionOrderPreserved(t *testing.T) {
	got, err := Resolve(RawThread{InitiatorID: "u9", ResponderID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u9", "u1"}, got, "initiator first regardless of lexical order")
}
