package presence

import (
	"testing"

	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestPresenceKey(t *testing.T) {
	assert.Equal(t, "presence:room:abc12345", presenceKey("abc12345"))
}

func TestParseMembers_SkipsGarbage(t *testing.T) {
	got := parseMembers([]string{"3", "x", "0", "12"})
	assert.Equal(t, []domain.UserID{3, 12}, got)
}
