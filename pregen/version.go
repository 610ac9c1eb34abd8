/*
Package pregen contains values which are generated as part of the release process and
compiled into the zeronsd executable.
*/
package pregen

const (
	// Version is generated from ChangeLog.md
	Version = "v0.5.0"
	// ReleaseDate is also generated from ChangeLog.md
	ReleaseDate = "2026-10-19"

	// Project is the home page reported by --version and in the CHAOS TXT answers.
	Project = "https://github.com/zerotier/zeronsd"
)
