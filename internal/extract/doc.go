// Package extract turns raw page markup into a harvest.Document.
//
// Extraction never fails. Undecodable bytes, broken markup and missing
// elements all degrade to empty fields; a page with nothing usable still
// yields a valid Document carrying the requested URL and the title sentinel.
package extract
