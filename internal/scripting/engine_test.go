package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

var entities = map[ecs.EntityID]EntityInfo{
	1: {ID: 1, Name: "tower", Kind: "sentry", Position: grid.Vec3{X: 0, Z: 0}},
	2: {ID: 2, Name: "scout", Kind: "player", Position: grid.Vec3{X: 1, Z: 1}},
	3: {ID: 3, Name: "crate", Kind: "prop", Position: grid.Vec3{X: 5, Z: 0}},
}

func describe(id ecs.EntityID) (EntityInfo, bool) {
	info, ok := entities[id]
	return info, ok
}

func newEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestPredicateFromDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "predicates"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "predicates", "players.lua"), []byte(`
function players_only(observer, target)
  return target.kind == "player"
end
`), 0o644))

	e := newEngine(t, dir)
	p, err := e.Predicate("players_only", describe)
	require.NoError(t, err)

	ok, err := p.Evaluate(1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Evaluate(1, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMissingDirectoryIsFine(t *testing.T) {
	t.Parallel()

	e := newEngine(t, filepath.Join(t.TempDir(), "nope"))
	assert.False(t, e.Has("anything"))
	_, err := e.Predicate("anything", describe)
	assert.Error(t, err)
}

func TestDistSqHelper(t *testing.T) {
	t.Parallel()

	e := newEngine(t, "")
	require.NoError(t, e.LoadString("near", `
function near(observer, target)
  return dist_sq(observer, target) <= 4
end
`))
	p, err := e.Predicate("near", describe)
	require.NoError(t, err)

	ok, err := p.Evaluate(1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Evaluate(1, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScriptErrorsSurface(t *testing.T) {
	t.Parallel()

	e := newEngine(t, "")
	require.NoError(t, e.LoadString("bad", `
function explode(observer, target) error("nope") end
function numeric(observer, target) return 1 end
`))

	p, err := e.Predicate("explode", describe)
	require.NoError(t, err)
	_, err = p.Evaluate(1, 2)
	assert.ErrorContains(t, err, "lua explode")

	p, err = e.Predicate("numeric", describe)
	require.NoError(t, err)
	_, err = p.Evaluate(1, 2)
	assert.ErrorContains(t, err, "want boolean")

	_, err = p.Evaluate(1, 99)
	assert.ErrorContains(t, err, "describe target")

	// The VM stays usable after a failed call.
	ok, err := e.callBool("numeric", lua.LNil, lua.LNil)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestLoadStringSyntaxError(t *testing.T) {
	t.Parallel()

	e := newEngine(t, "")
	assert.Error(t, e.LoadString("broken", "function ("))
}
