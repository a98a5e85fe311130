// Package sdk provides a typed Go client for the TruthGuard companion page
// API served by 'truthguard serve'.
//
// Checks posted through the API run in the background context, so high-risk
// results raise alerts exactly as checks from the browser do. Requests that
// fail at the network level or with a 5xx status are retried via fortify.
//
// Usage:
//
//	c := sdk.NewClient("http://127.0.0.1:5001")
//	result, err := c.Check(ctx, "The moon landing was staged")
//	if err != nil {
//		return err
//	}
//	fmt.Println(*result.Score, result.Category)
//
//	events, _ := c.Subscribe(ctx, sdk.EventAlert)
//	for e := range events {
//		n, _ := e.Notification()
//		fmt.Println(n.Message)
//	}
package sdk
