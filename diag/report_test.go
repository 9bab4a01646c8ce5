package diag_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvyskoc/segalloc/arena"
	"github.com/mvyskoc/segalloc/diag"
	"github.com/mvyskoc/segalloc/largealloc"
	"github.com/mvyskoc/segalloc/pool"
)

func TestBuildReportsCleanState(t *testing.T) {
	a, err := arena.New(32 << 20)
	require.NoError(t, err)
	defer a.Close()

	p := pool.New(a)
	p.Init()
	h := largealloc.New(a)
	h.Init()

	_, err = p.Allocate(0)
	require.NoError(t, err)
	_, err = h.Allocate(2000)
	require.NoError(t, err)

	report := diag.Build(p, h, true)
	require.True(t, report.OK(), "%v", report.Errors)
	require.NotEmpty(t, report.WriteText())

	body, err := report.ToJSON()
	require.NoError(t, err)
	require.Contains(t, string(body), "\"classes\"")
}

func TestBuildReportsCleanStateAfterRelease(t *testing.T) {
	a, err := arena.New(32 << 20)
	require.NoError(t, err)
	defer a.Close()

	h := largealloc.New(a)
	h.Init()

	bp, err := h.Allocate(2000)
	require.NoError(t, err)
	h.Release(bp)

	// h.Release already left a consistent free list; Build alone
	// should report no errors here.
	report := diag.Build(pool.New(a), h, false)
	require.True(t, report.OK(), "%v", report.Errors)
}
