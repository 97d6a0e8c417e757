// Package stream provides a small synchronous broadcast primitive used for
// cache change notifications.
//
//	updates := stream.NewController[Event]()
//	sub := updates.Listen(func(e Event) { log.Println(e) })
//	_ = updates.Add(Event{})
//	sub.Cancel()
//	_ = updates.Close()
//
// Adding to a closed controller fails with errors.ErrStreamClosed. Closing a
// controller cancels every subscription, which closes the subscription's Done
// channel; owners that track subscriptions use that to drop them.
package stream
