// Package scoring provides the client for the external credibility scoring
// service.
//
// The client issues one POST per check and normalises every outcome into a
// credibility.CheckResult or a *credibility.TransportError. Retry and timeout
// are off unless configured, and are implemented with fortify.
//
// Usage:
//
//	c := scoring.NewClient()
//	res, err := c.Check(ctx, "http://localhost:5000/api", "The earth is flat")
//	if err != nil {
//		// network failure, non-2xx or malformed payload
//	}
//	switch res.Variant() {
//	case credibility.VariantSuccess:
//		fmt.Println(*res.Score, res.Category)
//	}
package scoring
