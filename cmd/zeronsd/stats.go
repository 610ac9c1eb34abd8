package main

import (
	"fmt"
)

// qTypeStats is for high activity qTypes: A, AAAA and the in-addr.arpa & ip6.arpa PTRs.
type qTypeStats struct {
	queries int // Type specific query count
	good    int // Good replies sent back to client
	answers int // Total RRs sent in all good replies
}

func (t *qTypeStats) add(from *qTypeStats) {
	t.queries += from.queries
	t.good += from.good
	t.answers += from.answers
}

func (t *qTypeStats) String() string {
	return fmt.Sprintf("q=%d good=%d(%d)", t.queries, t.good, t.answers)
}

type generalStats struct {
	queries    int // Total queries
	badRequest int // No Question, wrong op-code

	chaos int
	nsid  int

	cookie          int
	cookieOnly      int
	wrongCookie     int // Server cookie mismatch
	malformedCookie int

	chaosRefused   int // Refused counters
	noAuthority    int
	wrongClass     int
	foreignReverse int // Reverse queries for other subnets

	authZoneANY int // Authority Zone Counters
	authZoneSOA int
	authZoneNS  int

	dbDone     int
	dbNoError  int
	dbNXDomain int

	rrlDrop int
	rrlSlip int
}

func (t *generalStats) add(from *generalStats) {
	t.queries += from.queries
	t.badRequest += from.badRequest
	t.chaos += from.chaos
	t.nsid += from.nsid
	t.cookie += from.cookie
	t.cookieOnly += from.cookieOnly
	t.wrongCookie += from.wrongCookie
	t.malformedCookie += from.malformedCookie
	t.chaosRefused += from.chaosRefused
	t.noAuthority += from.noAuthority
	t.wrongClass += from.wrongClass
	t.foreignReverse += from.foreignReverse
	t.authZoneANY += from.authZoneANY
	t.authZoneSOA += from.authZoneSOA
	t.authZoneNS += from.authZoneNS
	t.dbDone += from.dbDone
	t.dbNoError += from.dbNoError
	t.dbNXDomain += from.dbNXDomain
	t.rrlDrop += from.rrlDrop
	t.rrlSlip += from.rrlSlip
}

func (t *generalStats) String() string {
	return fmt.Sprintf("q=%d/%d/%d/%d C=%d/%d/%d/%d ref=%d/%d/%d/%d auth=%d/%d/%d db=%d/%d/%d rrl=%d/%d",
		t.queries, t.badRequest, t.chaos, t.nsid,
		t.cookie, t.cookieOnly, t.wrongCookie, t.malformedCookie,
		t.chaosRefused, t.noAuthority, t.wrongClass, t.foreignReverse,
		t.authZoneANY, t.authZoneSOA, t.authZoneNS,
		t.dbDone, t.dbNoError, t.dbNXDomain,
		t.rrlDrop, t.rrlSlip)
}

type serverStats struct {
	gen     generalStats
	A       qTypeStats
	AAAA    qTypeStats
	APtr    qTypeStats
	AAAAPtr qTypeStats
}

func (t *serverStats) add(from *serverStats) {
	t.gen.add(&from.gen)
	t.A.add(&from.A)
	t.AAAA.add(&from.AAAA)
	t.APtr.add(&from.APtr)
	t.AAAAPtr.add(&from.AAAAPtr)
}

func (t *serverStats) String() string {
	return "Gen: " + t.gen.String() +
		" A: " + t.A.String() +
		" AAAA: " + t.AAAA.String() +
		" APtr: " + t.APtr.String() +
		" AAAAPtr: " + t.AAAAPtr.String()
}
