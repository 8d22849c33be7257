package renderer

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to Rod protocol resource types. Product
// data lives in HTML and JSON; images, styling, and fonts only slow the
// render down, so they are blockable by default while scripts stay loadable
// for JS-built storefronts.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// trackerDomains lists the ad, analytics, and marketing hosts storefronts
// commonly embed. None of them contribute product markup; dropping their
// requests cuts page weight and keeps widget chatter out of the settle
// window. Matching is by registrable suffix, so subdomains are covered.
var trackerDomains = []string{
	// ad networks and exchanges
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"googletagservices.com",
	"adnxs.com",
	"adsrvr.org",
	"amazon-adsystem.com",
	"criteo.com",
	"criteo.net",
	"outbrain.com",
	"taboola.com",
	"moatads.com",
	"pubmatic.com",
	"rubiconproject.com",
	"openx.net",
	"casalemedia.com",
	"bidswitch.net",
	"contextweb.com",
	"media.net",
	"zedo.com",
	"turn.com",
	"mathtag.com",
	"serving-sys.com",

	// analytics, tag managers, session replay
	"google-analytics.com",
	"googletagmanager.com",
	"scorecardresearch.com",
	"quantserve.com",
	"hotjar.com",
	"mixpanel.com",
	"segment.io",
	"segment.com",
	"optimizely.com",
	"fullstory.com",
	"clarity.ms",
	"heapanalytics.com",
	"amplitude.com",
	"demdex.net",
	"krxd.net",
	"bluekai.com",
	"exelator.com",
	"eyeota.net",
	"agkn.com",
	"rlcdn.com",

	// social pixels
	"facebook.net",
	"facebook.com",
	"fbcdn.net",
	"connect.facebook.net",
	"analytics.twitter.com",
	"ads-twitter.com",
	"static.ads-twitter.com",
	"analytics.tiktok.com",
	"ct.pinterest.com",
	"tr.snapchat.com",
	"sc-static.net",
	"bat.bing.com",
	"sharethis.com",
	"addthis.com",

	// commerce marketing widgets: reviews, recommendations, email capture
	"klaviyo.com",
	"yotpo.com",
	"bazaarvoice.com",
	"dynamicyield.com",
	"nosto.com",
	"attn.tv",
	"listrak.com",
	"privy.com",
	"justuno.com",
	"consensu.org",
}

var trackerSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(trackerDomains))
	for _, d := range trackerDomains {
		set[d] = struct{}{}
	}
	return set
}()

// isTrackerHost reports whether host or any of its parent domains is on the
// blocklist ("pagead2.googlesyndication.com" matches via
// "googlesyndication.com").
func isTrackerHost(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := trackerSet[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// setupHijack puts a request interceptor on the page that drops the
// configured resource types and, when blockTrackers is set, every request
// headed for a known tracker host.
//
// The returned router is already running; the caller owns stopping it. A nil
// return means nothing needed blocking and no router was installed.
func setupHijack(page *rod.Page, blockedTypes []string, blockTrackers bool) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := resourceTypes[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !blockTrackers {
		return nil
	}

	router := page.HijackRequests()

	// Pattern "*" with an empty resource type intercepts every request; the
	// keep-or-drop decision happens per request below.
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, drop := blocked[ctx.Request.Type()]; drop {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		if blockTrackers {
			if u, err := url.Parse(ctx.Request.URL().String()); err == nil && isTrackerHost(u.Hostname()) {
				ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
		}

		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until router.Stop, so it gets its own goroutine.
	go router.Run()

	return router
}
