// Package memory implements the working memory threaded through a pipe
// graph execution: an ordered, write-once mapping from variable name to
// Stuff.
//
// Concurrent branches never share a Memory. Each branch runs against a Fork,
// a private copy of its parent taken at fork time, and the only way data
// flows back is a single MergeResult call on the parent. Merges into the
// same parent are serialized by the parent's lock.
package memory
