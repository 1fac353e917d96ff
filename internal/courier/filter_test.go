package courier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAllowList_SplitsTrimsAndCaseFolds(t *testing.T) {
	t.Parallel()

	allow := ParseAllowList([]string{"Example.com, foo.org , ,BAR.net"})

	assert.True(t, allow.Enabled())
	assert.ElementsMatch(t, []string{"example.com", "foo.org", "bar.net"}, allow.Domains())
}

func TestParseAllowList_MultipleEntries(t *testing.T) {
	t.Parallel()

	allow := ParseAllowList([]string{"example.com", "Foo.ORG", " bar.net "})

	assert.ElementsMatch(t, []string{"example.com", "foo.org", "bar.net"}, allow.Domains())
}

func TestParseAllowList_OnlyEmptyEntriesDisablesFiltering(t *testing.T) {
	t.Parallel()

	allow := ParseAllowList([]string{" , ,", ""})

	assert.False(t, allow.Enabled())
	assert.Empty(t, allow.Domains())
}

func TestShouldForward_DisabledForwardsEverything(t *testing.T) {
	t.Parallel()

	allow := ParseAllowList(nil)

	assert.True(t, allow.ShouldForward("anyone@anywhere.example"))
	assert.True(t, allow.ShouldForward("not-an-address"))
	assert.True(t, allow.ShouldForward(""))
}

func TestShouldForward_MatchesDomainCaseInsensitively(t *testing.T) {
	t.Parallel()

	allow := ParseAllowList([]string{"trusted.com"})

	assert.True(t, allow.ShouldForward("user@trusted.com"))
	assert.True(t, allow.ShouldForward("USER@TRUSTED.COM"))
	assert.False(t, allow.ShouldForward("user@other.com"))
	assert.False(t, allow.ShouldForward("user@sub.trusted.com"))
}

func TestShouldForward_DomainAfterLastAt(t *testing.T) {
	t.Parallel()

	allow := ParseAllowList([]string{"trusted.com"})

	// Quoted local parts can legally contain @; only the last one counts.
	assert.True(t, allow.ShouldForward(`"user@elsewhere"@trusted.com`))
	assert.False(t, allow.ShouldForward(`"user@trusted.com"@other.com`))
}

func TestShouldForward_SenderWithoutDomainNeverQualifies(t *testing.T) {
	t.Parallel()

	allow := ParseAllowList([]string{"trusted.com"})

	assert.False(t, allow.ShouldForward(""))
	assert.False(t, allow.ShouldForward("no-at-sign"))
	assert.False(t, allow.ShouldForward("dangling@"))
}

func TestShouldForward_UnaffectedByPriorCalls(t *testing.T) {
	t.Parallel()

	allow := ParseAllowList([]string{"trusted.com"})

	for i := 0; i < 3; i++ {
		assert.True(t, allow.ShouldForward("user@trusted.com"))
		assert.False(t, allow.ShouldForward("user@other.com"))
	}
	assert.ElementsMatch(t, []string{"trusted.com"}, allow.Domains())
}
