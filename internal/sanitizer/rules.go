package sanitizer

import (
	"regexp"

	"golang.org/x/net/html/atom"
)

// removedTags are dropped with their whole subtree.
var removedTags = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Iframe: true, atom.Frame: true, atom.Frameset: true, atom.Object: true,
	atom.Embed: true, atom.Applet: true, atom.Form: true, atom.Input: true,
	atom.Button: true, atom.Select: true, atom.Textarea: true, atom.Option: true,
	atom.Optgroup: true, atom.Datalist: true, atom.Label: true, atom.Fieldset: true,
	atom.Video: true, atom.Audio: true, atom.Source: true, atom.Track: true,
	atom.Canvas: true, atom.Svg: true, atom.Math: true, atom.Link: true,
	atom.Meta: true, atom.Base: true, atom.Dialog: true, atom.Head: true,
	atom.Title: true, atom.Param: true, atom.Map: true, atom.Area: true,
}

// unwrappedTags are replaced by their children.
var unwrappedTags = map[atom.Atom]bool{
	atom.Font: true, atom.Center: true, atom.Html: true, atom.Body: true,
	atom.Picture: true,
}

// structuralTags are page furniture unless they are the content root.
var structuralTags = map[atom.Atom]bool{
	atom.Nav: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
}

var boilerplateRoles = map[string]bool{
	"navigation": true, "banner": true, "contentinfo": true, "complementary": true,
	"search": true, "menu": true, "menubar": true, "toolbar": true,
	"dialog": true, "alertdialog": true, "tablist": true,
}

// boilerplatePattern matches navigation, promotional and consent markers
// in class, id and data-* attribute values.
var boilerplatePattern = regexp.MustCompile(`(?i)(^|[^a-z0-9])(` +
	`nav|navbar|navigation|menu|breadcrumbs?|sidebar|side-bar|skip-link|toolbar|masthead|site-header|site-footer|footer|` +
	`related|related-(posts|articles|stories|content)|recommend(ed|ations)?|more-stories|read-next|trending|most-(popular|read)|popular-posts|` +
	`promo|promos|promotion|sponsor|sponsored|advert|adverts|advertisement|ads?|ad-(slot|unit|container|wrapper|banner)|dfp|outbrain|taboola|` +
	`newsletter|subscribe|subscription|signup|sign-up|paywall|` +
	`social|share|sharing|share-bar|` +
	`cookie|cookies|cookie-banner|consent|gdpr|privacy-banner|` +
	`comments?|disqus|modal|popup` +
	`)($|[^a-z0-9])`)

var boilerplateLabelPattern = regexp.MustCompile(`(?i)\b(navigation|menu|breadcrumbs?|advertisement|sponsored|share|social|related|newsletter|cookie|consent|footer|site header)\b`)

// addressAttrs are component-addressing attributes checked like class/id.
var addressAttrs = []string{"id", "class", "data-testid", "data-component", "data-module"}

// residualPhrases are short furniture strings left behind in article
// bodies. Compared lowercased with whitespace collapsed.
var residualPhrases = map[string]bool{
	"advertisement":                          true,
	"advertisements":                         true,
	"ad":                                     true,
	"ads":                                    true,
	"sponsored":                              true,
	"sponsored content":                      true,
	"paid content":                           true,
	"paid post":                              true,
	"promoted":                               true,
	"skip advertisement":                     true,
	"story continues below advertisement":    true,
	"article continues below advertisement":  true,
	"article continues below":                true,
	"continue reading below":                 true,
	"continue reading the main story":        true,
	"scroll to continue with content":        true,
	"skip to main content":                   true,
	"skip to content":                        true,
	"related articles":                       true,
	"related stories":                        true,
	"recommended for you":                    true,
	"most popular":                           true,
	"share this article":                     true,
	"share this story":                       true,
	"sign up for our newsletter":             true,
	"subscribe to our newsletter":            true,
	"accept cookies":                         true,
}

const (
	maxResidualLen    = 140
	maxResidualClimb  = 4
	minLinksForHeavy  = 3
	bulkShareProtect  = 0.5
	heavyShareProtect = 0.8
	maxPrunePasses    = 8
)

// linkDensityThreshold is the anchor-text share above which an element
// with several links counts as a link list. Longer blocks are judged
// more strictly.
func linkDensityThreshold(textLen int) float64 {
	switch {
	case textLen < 200:
		return 0.6
	case textLen < 1000:
		return 0.5
	default:
		return 0.4
	}
}

// allowedAttrs lists attributes kept per element; "*" applies to all.
var allowedAttrs = map[string]map[string]bool{
	"*":          {"lang": true, "dir": true, "title": true},
	"a":          {"href": true},
	"img":        {"src": true, "alt": true, "width": true, "height": true},
	"td":         {"colspan": true, "rowspan": true, "headers": true},
	"th":         {"colspan": true, "rowspan": true, "headers": true, "scope": true},
	"col":        {"span": true},
	"colgroup":   {"span": true},
	"ol":         {"start": true, "reversed": true, "type": true},
	"li":         {"value": true},
	"blockquote": {"cite": true},
	"q":          {"cite": true},
	"del":        {"cite": true, "datetime": true},
	"ins":        {"cite": true, "datetime": true},
	"time":       {"datetime": true},
	"details":    {"open": true},
	"abbr":       {"title": true},
}
