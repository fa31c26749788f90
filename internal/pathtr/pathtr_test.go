package pathtr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHandlesDotDot(t *testing.T) {
	dm := NewDriveMap()
	dm.CWD[2] = `\FOO\BAR`
	drive, norm := Normalize(dm, 2, `..\BAZ`)
	assert.Equal(t, 2, drive)
	assert.Equal(t, `\FOO\BAZ`, norm)
}

func TestNormalizeAbsolutePath(t *testing.T) {
	dm := NewDriveMap()
	drive, norm := Normalize(dm, 0, `C:\DIR\FILE.TXT`)
	assert.Equal(t, 2, drive)
	assert.Equal(t, `\DIR\FILE.TXT`, norm)
}

func TestCoinNamesDedupesWithSuffix(t *testing.T) {
	coined := CoinNames([]string{"README", "README.TXT", "readme~99.txt"})
	seen := make(map[string]bool)
	for _, v := range coined {
		assert.False(t, seen[v], "duplicate coined name %q", v)
		seen[v] = true
	}
	assert.Contains(t, coined, "README")
	assert.Equal(t, "README", coined["README"])
	assert.Equal(t, "README.TXT", coined["README.TXT"])
}

func TestMatchGlob(t *testing.T) {
	assert.True(t, MatchGlob("README*.*", "README.TXT"))
	assert.True(t, MatchGlob("README*.*", "README"))
	assert.True(t, MatchGlob("*.TXT", "A.TXT"))
	assert.False(t, MatchGlob("*.TXT", "A.DOC"))
	assert.True(t, MatchGlob("A?C.TXT", "ABC.TXT"))
	assert.False(t, MatchGlob("A?C.TXT", "A.C.TXT"))
}

func TestResolveIdempotentRoundTrip(t *testing.T) {
	dm := NewDriveMap()
	dm.Base[0] = t.TempDir()
	drive, norm := Normalize(dm, 0, `\SUB\FILE.TXT`)
	host1, ok1 := Resolve(dm, drive, norm, true)
	host2, ok2 := Resolve(dm, drive, norm, true)
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, host1, host2)
}
