/*
Package zone holds the zones of authority served by zeronsd. An Authority is either the
single forward zone for the network domain or a reverse zone derived from one of the
network's subnets. Each Authority carries a synthetic SOA and NS and a database.Getter so
that refreshes replace the whole zone content atomically.

A PTRSet holds one reverse Authority per distinct subnet. Subnets are registered as they
are discovered and re-registration returns the existing Authority.
*/
package zone
