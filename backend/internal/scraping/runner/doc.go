// Package runner spawns external programs with a discrete argument list and
// collects what they write.
//
// No shell is ever involved: arguments reach the program exactly as given,
// so quotes, semicolons, backticks and $(...) carry no special meaning.
// Every run is bounded by an optional timeout; when it expires, or when the
// caller's context is cancelled, the whole process tree is killed.
package runner
