package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTrackerHost(t *testing.T) {
	assert.True(t, isTrackerHost("googletagmanager.com"))
	assert.True(t, isTrackerHost("pagead2.googlesyndication.com"))
	assert.True(t, isTrackerHost("static.klaviyo.com"))
	assert.True(t, isTrackerHost("Widget.YOTPO.com"))

	assert.False(t, isTrackerHost("shop.example.com"))
	assert.False(t, isTrackerHost("cdn.shopify.com"))
	assert.False(t, isTrackerHost("com"))
	assert.False(t, isTrackerHost("notklaviyo.com"))
}
