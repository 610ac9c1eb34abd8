/*
Package log provides global output control across the whole daemon. Logging comes in four
levels: Silent, Major, Minor and Debug, each more detailed than the previous. Levels are
inclusive, so, e.g., if MinorLevel is set that implies MajorLevel logging.

Refresh loops and DNS servers all run in their own go-routines, so every write to the
current io.Writer is serialized. Multi-line messages are written in one piece with each
line carrying the level prefix. A trailing newline is not needed and excess ones are
trimmed.

Specialist logging functions external to this package, such as the per-query log, should
use log.Out() so that output can be captured by tests and remains serialized.
*/
package log
