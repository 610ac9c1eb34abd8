/*
Package central talks to the two HTTP services zeronsd depends on: ZeroTier Central, which
holds the member list and DNS settings of a network, and the local ZeroTier service, which
knows the addresses this host has been assigned on the network.

Client implements Source so the refresher can be tested without a Central instance.
*/
package central
