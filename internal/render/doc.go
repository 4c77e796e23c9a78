// Package render contains the content generators that fill cache slots:
// Origin fetches a page from the upstream renderer and serialises the whole
// HTTP response (status line, headers, body) so a cached slot can be replayed
// verbatim; Command runs an external program and captures its stdout, the
// one-process-per-request model of CGI front ends.
package render
