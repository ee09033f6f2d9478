package serde

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRejectsNonPluginBlob(t *testing.T) {
	_, err := Load("not-a-real-plugin", []byte("this is not a shared object"))
	require.Error(t, err)
}

func TestLoadRejectsEmptyBlob(t *testing.T) {
	_, err := Load("empty", nil)
	require.Error(t, err)
}
