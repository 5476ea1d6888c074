// Package extract turns raw page markup into the set of outbound links it
// references, plus the page title.
//
// Extraction is a pure function of the content and its base URL. Parsing is
// done with golang.org/x/net/html, which repairs malformed markup the way a
// browser would, so a broken page still yields a best-effort link set rather
// than an error. A page with no links is a valid result.
//
// # Resolution rules
//
//   - href values on <a>, <area> and <link> elements are collected
//   - each href is resolved against the document base: the first
//     <base href> if present, otherwise the page URL
//   - only absolute http and https results are kept; mailto:, javascript:,
//     tel:, data:, empty and malformed values are skipped silently
//   - the result is sorted and free of duplicates
package extract
