package bfg_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang-index/internal/astpool"
	"github.com/Sumatoshi-tech/codefang-index/internal/bfg"
)

const asyncFuncSource = `async def maybe_fetch(x):
    if x > 0:
        y = await g(x)
        return y
    return 0
`

func TestBuild_AsyncFunctionBlockOrder(t *testing.T) {
	t.Parallel()

	pool := astpool.New()

	ctx := context.Background()

	parse, err := pool.Parse(ctx, "python", []byte(asyncFuncSource))
	require.NoError(t, err)

	defer parse.Close()

	b := bfg.NewBuilder("python")

	g, err := b.Build(bfg.FunctionInput{
		FunctionNodeID: "file.py:maybe_fetch",
		StartLine:      1,
		Parse:          parse,
	})
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.False(t, g.IsGenerator)
	assert.Equal(t, 0, g.YieldCount)

	kinds := make([]bfg.BlockKind, 0, len(g.Blocks))
	for _, blk := range g.Blocks {
		kinds = append(kinds, blk.Kind)
	}

	// The await nested inside the if-body must still be split into a
	// suspend/resume pair, in exactly this order.
	require.Equal(t, []bfg.BlockKind{
		bfg.BlockEntry,
		bfg.BlockCondition,
		bfg.BlockSuspend,
		bfg.BlockResume,
		bfg.BlockStatement,
		bfg.BlockStatement,
		bfg.BlockExit,
	}, kinds)

	suspend := g.Blocks[2]
	resume := g.Blocks[3]

	assert.True(t, suspend.IsAsyncCall)
	assert.True(t, suspend.CanThrow)
	assert.Equal(t, "await g(x)", suspend.AwaitedExpr)
	assert.Equal(t, suspend.ID, resume.ResumeFromSuspendID)
	assert.Equal(t, "y", resume.ResultVariable)

	assert.True(t, g.Blocks[4].IsReturn, "return y")
	assert.True(t, g.Blocks[5].IsReturn, "return 0")
}

const loopBreakSource = `def spin(n):
    while n > 0:
        if n == 1:
            break
        n = n - 1
`

func TestBuild_LoopBodyIsWalked(t *testing.T) {
	t.Parallel()

	pool := astpool.New()
	ctx := context.Background()

	parse, err := pool.Parse(ctx, "python", []byte(loopBreakSource))
	require.NoError(t, err)

	defer parse.Close()

	b := bfg.NewBuilder("python")

	g, err := b.Build(bfg.FunctionInput{
		FunctionNodeID: "file.py:spin",
		StartLine:      1,
		Parse:          parse,
	})
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	kinds := make([]bfg.BlockKind, 0, len(g.Blocks))
	for _, blk := range g.Blocks {
		kinds = append(kinds, blk.Kind)
	}

	require.Equal(t, []bfg.BlockKind{
		bfg.BlockEntry,
		bfg.BlockLoopHead,
		bfg.BlockCondition,
		bfg.BlockStatement,
		bfg.BlockStatement,
		bfg.BlockExit,
	}, kinds)

	loopHead := g.Blocks[1]
	breakBlock := g.Blocks[3]

	assert.True(t, breakBlock.IsBreak)
	assert.Equal(t, loopHead.ID, breakBlock.TargetLoopID, "break records its enclosing loop header")
	assert.False(t, g.Blocks[4].IsBreak)
}

const generatorSource = `def counter(n):
    i = 0
    while i < n:
        yield i
        i = i + 1
`

func TestBuild_GeneratorLowering(t *testing.T) {
	t.Parallel()

	pool := astpool.New()
	ctx := context.Background()

	parse, err := pool.Parse(ctx, "python", []byte(generatorSource))
	require.NoError(t, err)

	defer parse.Close()

	b := bfg.NewBuilder("python")

	g, err := b.Build(bfg.FunctionInput{
		FunctionNodeID: "file.py:counter",
		StartLine:      1,
		Parse:          parse,
	})
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.True(t, g.IsGenerator)
	assert.GreaterOrEqual(t, g.YieldCount, 1)
	assert.Equal(t, bfg.BlockEntry, g.Blocks[0].Kind)
	assert.NotEmpty(t, g.Blocks[0].AllLocals)
}

func TestBuild_FunctionNotFound(t *testing.T) {
	t.Parallel()

	pool := astpool.New()
	ctx := context.Background()

	parse, err := pool.Parse(ctx, "python", []byte("x = 1\n"))
	require.NoError(t, err)

	defer parse.Close()

	b := bfg.NewBuilder("python")

	_, err = b.Build(bfg.FunctionInput{
		FunctionNodeID: "file.py:nope",
		StartLine:      99,
		Parse:          parse,
	})
	assert.Error(t, err)
}

func TestBuildModule_ZeroNamedChildren(t *testing.T) {
	t.Parallel()

	pool := astpool.New()
	ctx := context.Background()

	parse, err := pool.Parse(ctx, "python", []byte(""))
	require.NoError(t, err)

	defer parse.Close()

	b := bfg.NewBuilder("python")

	g := b.BuildModule("file.py:module", parse)
	require.NoError(t, g.Validate())
	assert.Equal(t, 0, g.TotalStatements)
}
