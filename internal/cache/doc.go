// Package cache implements the on-disk page cache shared by independent
// producer processes. Each cached page is one regular file (a Slot) named by
// the hex form of the key hash and living directly under the cache root.
// Coordination happens only through the filesystem: generation rights are an
// exclusively created "<slot>.lock" file, and new content is published by
// writing a temp file in the root and renaming it over the slot, so readers
// see either the old or the new page and never a partial one. After every
// successful publish the oldest slots are evicted until the configured entry
// count holds again. The HTTP and CLI layers reach the engine only through
// Cache.Process and the diagnostics helpers.
package cache
