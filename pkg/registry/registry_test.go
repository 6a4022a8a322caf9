package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	require.NoError(t, reg.Validate())

	a, ok := reg.Find("describe-medicine")
	require.True(t, ok)
	assert.Equal(t, "medicine", a.Category)
	assert.Equal(t, "90s", a.Timeout)

	_, ok = reg.Find("validate-subscription")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	valid := Activity{ID: "a", DisplayName: "A", Category: "c", TaskType: "a"}

	tests := []struct {
		name    string
		acts    []Activity
		wantErr string
	}{
		{name: "empty", acts: nil, wantErr: "no activities"},
		{name: "missing id", acts: []Activity{{DisplayName: "A", Category: "c", TaskType: "a"}}, wantErr: "ID"},
		{name: "duplicate id", acts: []Activity{valid, valid}, wantErr: "duplicate activity ID"},
		{name: "duplicate task type", acts: []Activity{valid, {ID: "b", DisplayName: "B", Category: "c", TaskType: "a"}}, wantErr: "duplicate task type"},
		{name: "bad timeout", acts: []Activity{{ID: "a", DisplayName: "A", Category: "c", TaskType: "a", Timeout: "ten"}}, wantErr: "invalid timeout"},
		{name: "ok", acts: []Activity{valid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&ActivityRegistry{Activities: tt.acts}).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2","activities":[{"id":"x","taskType":"x"}]}`), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "2", reg.Version)
	assert.Len(t, reg.Activities, 1)

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	_, err = LoadRegistry(path)
	assert.Error(t, err)
}
