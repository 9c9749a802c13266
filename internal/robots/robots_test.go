package robots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRobotsTxt = `User-agent: *
Disallow: /wp-login.php
Disallow: /admin/
Disallow: /

User-agent: SomeOtherBot
Disallow: /everything
`

func TestParseIgnoresBareSlash(t *testing.T) {
	m, err := Parse([]byte(sampleRobotsTxt))
	require.NoError(t, err)
	assert.False(t, m.Disallowed("/totally-unrelated-path"))
}

func TestDisallowedPrefixMatch(t *testing.T) {
	m, err := Parse([]byte(sampleRobotsTxt))
	require.NoError(t, err)
	assert.True(t, m.Disallowed("/wp-login.php"))
	assert.True(t, m.Disallowed("/admin/settings"))
	assert.False(t, m.Disallowed("/home"))
}

func TestDisallowedIgnoresOtherUserAgentGroups(t *testing.T) {
	m, err := Parse([]byte(sampleRobotsTxt))
	require.NoError(t, err)
	assert.False(t, m.Disallowed("/everything"))
}

func TestEmptyMatcherDisallowsNothing(t *testing.T) {
	m := Empty()
	assert.False(t, m.Disallowed("/anything"))
}
