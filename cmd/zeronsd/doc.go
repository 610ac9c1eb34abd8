/*
zeronsd is an authoritative name server for the members of a ZeroTier network.

Member names and addresses are fetched from ZeroTier Central every --refresh interval and
served as A and AAAA records under --domain. Every member is reachable as
zt-<member-id>.<domain> and members with a name in Central are also reachable by that
name converted into a DNS label. The reverse zone of each subnet this host is assigned on
the network is served from the addresses in that subnet.

A UDP and TCP server is started on each address this host has on the network. Each
server answers the forward zone and the reverse zone of its own subnet only.

Static entries can be added with an /etc/hosts style file which is re-read on every
refresh. Hosts entries take precedence over member names.

See the usage output (-h) for options, environment variables and signals.
*/
package main
