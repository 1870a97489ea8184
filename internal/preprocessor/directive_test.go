package preprocessor

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondStack(t *testing.T) {
	var c condStack
	never := func() (bool, error) {
		t.Fatal("condition evaluated")
		return false, nil
	}
	always := func() (bool, error) { return true, nil }

	assert.True(t, c.Active())
	assert.Nil(t, c.Unclosed())

	open := &Token{Kind: KindHash}
	c.Push(false, open)
	assert.False(t, c.Active())
	assert.Same(t, open, c.Unclosed())

	// A dead group nested in a dead branch never evaluates its conditions.
	c.Push(true, nil)
	assert.False(t, c.Active())
	require.NoError(t, c.Elif(nil, never))
	require.NoError(t, c.Else(nil))
	assert.False(t, c.Active())
	require.NoError(t, c.Pop(nil))

	require.NoError(t, c.Elif(nil, always))
	assert.True(t, c.Active())
	require.NoError(t, c.Elif(nil, never))
	assert.False(t, c.Active())
	require.NoError(t, c.Else(nil))
	assert.False(t, c.Active())
	assert.Equal(t, 1, c.Depth())

	require.NoError(t, c.Pop(nil))
	assert.Equal(t, 0, c.Depth())
	assert.True(t, c.Active())
}

func TestCondStackErrors(t *testing.T) {
	var c condStack
	assert.EqualError(t, c.Pop(nil), "#endif without #if")
	assert.EqualError(t, c.Else(nil), "#else without #if")
	assert.EqualError(t, c.Elif(nil, nil), "#elif without #if")

	c.Push(true, nil)
	require.NoError(t, c.Else(nil))
	assert.EqualError(t, c.Else(nil), "#else after #else")
	assert.EqualError(t, c.Elif(nil, nil), "#elif after #else")

	var d condStack
	d.Push(false, nil)
	boom := errors.New("boom")
	err := d.Elif(nil, func() (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestErrorDirective(t *testing.T) {
	_, _, err := PreprocessToString("int x;\n#error  bad   thing  \n")
	require.Error(t, err)

	var de *DetailedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "bad   thing", de.Msg)
	assert.Equal(t, "<root_file>:2:9: bad   thing", err.Error())
	require.Len(t, de.Nodes, 1)
	require.NotNil(t, de.Nodes[0].Printer)
	assert.True(t, de.Nodes[0].Printer.ExpandSite)

	_, _, err = PreprocessToString("#error\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "#error")
}
