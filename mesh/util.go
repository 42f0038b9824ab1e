package mesh

// shortID truncates a peer/transfer id for log prefixes
func shortID(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
