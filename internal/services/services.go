// Package services maps well-known TCP ports to short service labels.
package services

import "sort"

// Unknown is the label for ports missing from the table.
const Unknown = "Unknown"

var wellKnown = map[int]string{
	21:   "FTP",
	22:   "SSH",
	23:   "Telnet",
	25:   "SMTP",
	80:   "HTTP",
	110:  "POP3",
	143:  "IMAP",
	443:  "HTTPS",
	3306: "MySQL",
	8080: "HTTP-Alt",
}

// Lookup returns the service label for port, or Unknown.
func Lookup(port int) string {
	if name, ok := wellKnown[port]; ok {
		return name
	}
	return Unknown
}

// Ports returns every port in the table in ascending order.
func Ports() []int {
	out := make([]int, 0, len(wellKnown))
	for p := range wellKnown {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
