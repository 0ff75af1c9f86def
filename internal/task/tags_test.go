package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTags(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantTitle string
		wantTags  map[string]string
	}{
		{
			name:      "markers and bare tag",
			text:      "Buy milk 🆔 tsk001 📅 2026-02-28 #stub",
			wantTitle: "Buy milk",
			wantTags:  map[string]string{"id": "tsk001", "due": "2026-02-28", "stub": ""},
		},
		{
			name:      "key value tag",
			text:      "Refactor parser #estimate:2h30m",
			wantTitle: "Refactor parser",
			wantTags:  map[string]string{"estimate": "2h30m"},
		},
		{
			name:      "no tags",
			text:      "Just a plain title",
			wantTitle: "Just a plain title",
			wantTags:  map[string]string{},
		},
		{
			name:      "wiki link with hash is not a tag",
			text:      "Review [[Design#Goals]] notes 📅 2026-04-01",
			wantTitle: "Review [[Design#Goals]] notes",
			wantTags:  map[string]string{"due": "2026-04-01"},
		},
		{
			name:      "wiki link only",
			text:      "See [[Other Note#Section]]",
			wantTitle: "See [[Other Note#Section]]",
			wantTags:  map[string]string{},
		},
		{
			name:      "blocked marker with list",
			text:      "Deploy ⛔ abc123,def456",
			wantTitle: "Deploy",
			wantTags:  map[string]string{"blocked": "abc123,def456"},
		},
		{
			name:      "legacy b key reads as blocked",
			text:      "Deploy #b:abc123",
			wantTitle: "Deploy",
			wantTags:  map[string]string{"blocked": "abc123"},
		},
		{
			name:      "unknown tags pass through",
			text:      "Standup #routine #area:infra",
			wantTitle: "Standup",
			wantTags:  map[string]string{"routine": "", "area": "infra"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, tags := SplitTags(tt.text)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantTags, tags)
		})
	}
}

func TestRenderTags_CanonicalOrder(t *testing.T) {
	tags := map[string]string{
		"stub":     "",
		"zeta":     "1",
		"id":       "abc123",
		"area":     "infra",
		"due":      "2026-03-01",
		"estimate": "2h",
	}
	assert.Equal(t,
		"🆔 abc123 📅 2026-03-01 #estimate:2h #stub #area:infra #zeta:1",
		RenderTags(tags))
}

func TestRenderTags_Empty(t *testing.T) {
	assert.Equal(t, "", RenderTags(nil))
	assert.Equal(t, "", RenderTags(map[string]string{}))
}

func TestTask_Blockers(t *testing.T) {
	task := &Task{Tags: map[string]string{}}
	assert.False(t, task.IsBlocked())
	assert.Nil(t, task.BlockerIDs())

	task.AddBlocker("aaa111")
	task.AddBlocker("bbb222")
	task.AddBlocker("aaa111") // no duplicates
	assert.True(t, task.IsBlocked())
	assert.Equal(t, []string{"aaa111", "bbb222"}, task.BlockerIDs())

	task.RemoveBlocker("aaa111")
	assert.Equal(t, []string{"bbb222"}, task.BlockerIDs())

	task.RemoveBlocker("bbb222")
	assert.False(t, task.IsBlocked())
}
