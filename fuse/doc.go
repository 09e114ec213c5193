// Package fuse provides the default result fuser combining a primary
// result with speculative expert results into one response text.
package fuse
