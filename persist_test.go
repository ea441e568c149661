package atombase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atombase/atombase/atom"
)

func TestScenarioS6PersistenceRoundTrip(t *testing.T) {
	dataPath := t.TempDir()

	cfg := testConfig()
	cfg.Persist.Enabled = true
	cfg.Persist.DataPath = dataPath

	e1 := New(cfg, nil)
	for i := 0; i < 20; i++ {
		insertDoc(t, e1, "people", []atom.Atom{atom.New(0, testAge, atom.TypeInt64, 8, 40)})
	}
	tail := []atom.Atom{atom.New(0, 999, atom.TypeBool, 8, 1)}
	insertDoc(t, e1, "people", tail)

	require.NoError(t, e1.PersistCollection("people"))

	e2 := New(cfg, nil)
	require.NoError(t, e2.LoadCollection("people"))

	lft := lftBytes(0, atom.OpEQ, atom.New(0, 999, atom.TypeBool, 8, 1))

	out1 := make([]atom.Atom, 1024)
	n1, err := e1.QueryFind(NewCandle(), "people", nil, lft, nil, out1)
	require.NoError(t, err)

	out2 := make([]atom.Atom, 1024)
	n2, err := e2.QueryFind(NewCandle(), "people", nil, lft, nil, out2)
	require.NoError(t, err)

	assert.Equal(t, n1, n2)
	assert.Equal(t, out1[:n1], out2[:n2])
}

func TestLoadCollectionMissingFilesErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Persist.Enabled = true
	cfg.Persist.DataPath = t.TempDir()

	e := New(cfg, nil)
	err := e.LoadCollection("nonexistent")
	assert.Error(t, err)
}
