// Package robots reads a site's robots.txt.
//
// Extract pulls the declared sitemap URLs out of the document text using a
// deliberately simple rule: every line containing "Sitemap: " contributes
// its last whitespace-delimited token. Policy answers allow/disallow
// questions for the crawl engine using the full robots exclusion rules.
package robots
