package dnsutil

import (
	"fmt"

	"github.com/miekg/dns"
)

// ClassToString converts a class to a string, falling back to the numeric value.
func ClassToString(c dns.Class) string {
	if s := dns.ClassToString[uint16(c)]; len(s) > 0 {
		return s
	}

	return fmt.Sprintf("C-%d", c)
}

// TypeToString converts a type to a string, falling back to the numeric value.
func TypeToString(t uint16) string {
	if s := dns.TypeToString[t]; len(s) > 0 {
		return s
	}

	return fmt.Sprintf("T-%d", t)
}

// RcodeToString converts an rcode to a string, falling back to the numeric value.
func RcodeToString(r int) string {
	if s := dns.RcodeToString[r]; len(s) > 0 {
		return s
	}

	return fmt.Sprintf("r-%d", r)
}
