package bridge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameScreenDocument_Layout(t *testing.T) {
	t.Parallel()

	doc, err := GameScreenDocument(`function setup() { createCanvas(400, 400); }`)
	require.NoError(t, err)

	assert.Contains(t, doc, `name="viewport"`)
	assert.Contains(t, doc, `background: #141414`)
	assert.Contains(t, doc, `touch-action: none`)
	assert.Contains(t, doc, `onPlayerInput`)
	assert.Contains(t, doc, `broadcastState`)
	assert.Contains(t, doc, `function setup() { createCanvas(400, 400); }`)

	bridge := strings.Index(doc, "window.AirCade")
	lib := strings.Index(doc, LibraryURL)
	code := strings.Index(doc, "function setup()")
	require.True(t, bridge >= 0 && lib >= 0 && code >= 0)
	assert.Less(t, bridge, lib, "bridge must load before the library")
	assert.Less(t, lib, code, "library must load before game code")
}

func TestControllerScreenDocument_UsesControllerBridge(t *testing.T) {
	t.Parallel()

	doc, err := ControllerScreenDocument(`AirCade.sendInput('tap', {})`)
	require.NoError(t, err)

	assert.Contains(t, doc, `sendInput`)
	assert.Contains(t, doc, `onStateUpdate`)
	assert.NotContains(t, doc, `onPlayerInput`)
	assert.Contains(t, doc, `AirCade.sendInput('tap', {})`)
}

func TestGameScreenDocument_RejoinReplacesInPlace(t *testing.T) {
	t.Parallel()

	doc, err := GameScreenDocument("")
	require.NoError(t, err)

	assert.Contains(t, doc, "players = players.map(")
	assert.Contains(t, doc, "if (!found) players.push(p.player);")
	assert.NotContains(t, doc, "players = players.filter(function (x) { return x.id !== p.player.id; });")
}

func TestDocument_CodeCannotCloseScript(t *testing.T) {
	t.Parallel()

	doc, err := GameScreenDocument(`var s = "</script><script>alert(1)</SCRIPT>";`)
	require.NoError(t, err)

	assert.NotContains(t, doc, `"</script>`)
	assert.Contains(t, doc, `<\/script><script>alert(1)<\/SCRIPT>`)
}

func TestFramePage_SandboxesSrcdoc(t *testing.T) {
	t.Parallel()

	doc, err := GameScreenDocument(`let a = 1 < 2 && "x";`)
	require.NoError(t, err)
	page, err := FramePage("Pong", doc)
	require.NoError(t, err)

	assert.Contains(t, page, `sandbox="allow-scripts"`)
	assert.Contains(t, page, `<title>Pong</title>`)
	assert.Contains(t, page, `srcdoc="&lt;!DOCTYPE html&gt;`)
	assert.NotContains(t, page, `allow-same-origin`)
}
