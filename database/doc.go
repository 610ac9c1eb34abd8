/*
Package database provides a hierarchical DNS lookup mechanism. LookupRR() requires a
class, type and FQDN and returns a set of RRs or an NXDOMAIN indication. Owner names
starting with a "*" label act as wildcards for names which do not otherwise exist.

Once the database has been handed to a Getter only lookup calls can be made as there is
no internal concurrency protection.

Expected usage is:

	db := database.NewDatabase()
	for ... {
	    db.AddRR(dns.RR)
	}

	getter.Replace(db)
	rrset, nxDomain := getter.Current().LookupRR(...)

database.Getter exists to assist with switching databases atomically.
*/
package database
