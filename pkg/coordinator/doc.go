// Package coordinator multiplexes beacon subscriptions onto shared
// scanning sessions.
//
// A Coordinator owns the subscription registry, the status gate and the
// session manager. All of their state is touched only from the
// coordinator's loop goroutine: public methods, authorization changes and
// scanner callbacks are posted onto the loop as tasks and run in order.
//
// Subscription callbacks are invoked on the loop. They must not block and
// must not call back into the Coordinator synchronously.
//
// Lifecycle:
//
//	c, err := coordinator.New(coordinator.Config{
//		Scanner:     scanner,
//		Environment: env,
//		Authority:   auth,
//	})
//	if err := c.Start(ctx); err != nil { ... }
//	defer c.Stop()
//
//	req := model.NewActiveRequest(model.KindRanging, region, false, onResult)
//	c.Add(req, model.PermissionWhenInUse)
//	...
//	c.Remove(req)
package coordinator
