package timeline

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitviz/gitviz/internal/identity"
	"github.com/gitviz/gitviz/internal/models"
)

// Two repositories commit at the same instant; the premapped email and the
// bare name both resolve to one person, and the collision step separates
// the offsets while keeping repository order.
func TestTwoRepositoriesOnePerson(t *testing.T) {
	day0 := ts(t, "2024-03-01T00:00:00Z")

	repoA := []models.CommitEvent{
		{RepoID: "repoA", Timestamp: day0, Author: "alice@x.com", Action: models.ActionModify, Path: "repoA/a.txt"},
	}
	repoB := []models.CommitEvent{
		{RepoID: "repoB", Timestamp: day0, Author: "Alice", Action: models.ActionModify, Path: "repoB/b.txt"},
	}

	resolver := identity.NewResolver()
	resolver.AddMapping("alice@x.com", "Alice")

	merged := Merge([][]models.CommitEvent{repoA, repoB}, resolver)
	require.Len(t, merged, 2)
	assert.Equal(t, "Alice", merged[0].Author)
	assert.Equal(t, "Alice", merged[1].Author)
	assert.Equal(t, "repoA/a.txt", merged[0].Path, "repository insertion order breaks the tie")

	entries := Scale(merged, day0, 1, 1)
	require.Len(t, entries, 2)
	assert.Equal(t, time.Duration(0), entries[0].Offset)
	assert.Equal(t, collisionStep, entries[1].Offset)

	var buf bytes.Buffer
	require.NoError(t, WriteLog(&buf, entries))
	assert.Equal(t, "0|Alice|M|repoA/a.txt\n1|Alice|M|repoB/b.txt\n", buf.String())
}
