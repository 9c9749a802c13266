package uaclass

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEmpty(t *testing.T) {
	c := Classify("")
	assert.True(t, c.IsEmpty)
	assert.False(t, c.IsKnownBad)
}

func TestClassifyKnownBad(t *testing.T) {
	c := Classify("python-requests/2.31")
	assert.True(t, c.IsKnownBad)
	assert.True(t, c.LibraryIsBot)
	assert.False(t, c.IsKnownBenignCrawler)
}

func TestClassifyKnownBenignCrawler(t *testing.T) {
	c := Classify("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.True(t, c.IsKnownBenignCrawler)
}

func TestClassifyBrowserAndOS(t *testing.T) {
	c := Classify("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	assert.Equal(t, "Chrome", c.BrowserFamily)
	assert.Equal(t, "Windows", c.OSFamily)
	assert.True(t, c.IsPC)
	assert.False(t, c.IsMobile)
}

func TestClassifyMobile(t *testing.T) {
	c := Classify("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148")
	assert.True(t, c.IsMobile)
	assert.True(t, c.IsTouch)
	assert.False(t, c.IsPC)
}
