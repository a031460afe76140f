package menu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treykane/tunnelbar/internal/model"
)

func snapshot() []model.TunnelStatus {
	return []model.TunnelStatus{
		{TunnelDefinition: model.TunnelDefinition{ID: "t1", Name: "DB → clinic"}, Running: true, PID: 7},
		{TunnelDefinition: model.TunnelDefinition{ID: "t2", Name: "Redis"}},
	}
}

func TestBuildLabelsAndTrailingItems(t *testing.T) {
	items := Build(snapshot())
	require.Len(t, items, 4)

	assert.Equal(t, "DB → clinic (on)", items[0].Label)
	assert.Equal(t, "t1", items[0].TunnelID)
	assert.True(t, items[0].Running)

	assert.Equal(t, "Redis (off)", items[1].Label)
	assert.False(t, items[1].Running)

	assert.Equal(t, KindSeparator, items[2].Kind)
	assert.False(t, items[2].Selectable())

	assert.Equal(t, KindQuit, items[3].Kind)
	assert.Equal(t, QuitLabel, items[3].Label)
}

func TestBuildEmptySnapshotStillOffersQuit(t *testing.T) {
	items := Build(nil)
	require.Len(t, items, 2)
	assert.Equal(t, KindQuit, items[1].Kind)
}

func TestNextSkipsSeparator(t *testing.T) {
	items := Build(snapshot())

	assert.Equal(t, 1, Next(items, 0, 1))
	assert.Equal(t, 3, Next(items, 1, 1), "separator is skipped")
	assert.Equal(t, 3, Next(items, 3, 1), "stays on last item")
	assert.Equal(t, 1, Next(items, 3, -1))
	assert.Equal(t, 0, Next(items, 0, -1))
}
