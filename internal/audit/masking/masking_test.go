package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****cdef", MaskSecret("0123456789abcdef"))
	assert.Equal(t, "sess_****wxyz", MaskSecret("sess_abcdwxyz"))
}

func TestMaskSensitiveOnlyTouchesCredentialKeys(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"session_id":       "0123456789abcdef",
		"remove_all":       true,
		"username":         "ann",
		"":                 "dropped",
		"nested":           map[string]any{"persistent_token": "ffffffff0000"},
		"client_user_name": "kept",
	})

	assert.Equal(t, "****cdef", out["session_id"])
	assert.Equal(t, true, out["remove_all"])
	assert.Equal(t, "ann", out["username"])
	assert.Equal(t, "kept", out["client_user_name"])
	assert.NotContains(t, out, "")
	assert.Equal(t, map[string]any{"persistent_token": "****0000"}, out["nested"])

	assert.Nil(t, MaskSensitive(nil))
}
