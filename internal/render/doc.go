// Package render decides whether a site needs a script-capable fetch.
//
// The decision is a coarse heuristic: the root document is fetched once and
// a site whose body contains a bare "<script>" tag is crawled with the
// scripted fetcher. Server-rendered sites that embed incidental scripts are
// therefore also classified as scripted. Changing the marker changes which
// fetcher every page of a crawl goes through.
package render
