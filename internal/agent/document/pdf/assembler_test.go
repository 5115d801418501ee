package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdfshift/internal/compress"
)

func TestAssembler_AddPageRejectsBadInput(t *testing.T) {
	a := NewAssembler()
	assert.ErrorIs(t, a.AddPage(nil, 612, 792), ErrEmptyPage)
	assert.ErrorIs(t, a.AddPage([]byte{0xFF}, 0, 792), ErrInvalidPageSize)
	assert.ErrorIs(t, a.AddPage([]byte{0xFF}, 612, -1), ErrInvalidPageSize)
	assert.Zero(t, a.Pages())
}

func TestAssembler_NoPages(t *testing.T) {
	_, err := NewAssembler().Bytes()
	assert.ErrorIs(t, err, compress.ErrNoPages)
}

func TestAssembler_Bytes(t *testing.T) {
	a := NewAssembler()
	require.NoError(t, a.AddPage(testJPEG(t, 61, 79), 612, 792))
	require.NoError(t, a.AddPage(testJPEG(t, 61, 79), 612, 792))
	require.NoError(t, a.AddPage(testJPEG(t, 79, 61), 792, 612))
	assert.Equal(t, 3, a.Pages())

	out, err := a.Bytes()
	require.NoError(t, err)

	c, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, 3, c.PageCount())
}

func TestAssembler_ThroughBackend(t *testing.T) {
	var asm compress.Assembler = NewBackend().NewAssembler()
	require.NoError(t, asm.AddPage(testJPEG(t, 20, 20), 200, 200))
	out, err := asm.Bytes()
	require.NoError(t, err)

	c, err := NewBackend().Parse(out)
	require.NoError(t, err)
	_, err = c.Serialize()
	assert.NoError(t, err)
}

func TestSameSize(t *testing.T) {
	assert.True(t, sameSize(pageImage{width: 612, height: 792}, pageImage{width: 612.001, height: 792}))
	assert.False(t, sameSize(pageImage{width: 612, height: 792}, pageImage{width: 792, height: 612}))
}
