// Package notify carries fleet notifications out of the core.
//
// Services enqueue typed messages on an Outbox and move on; a Dispatcher
// goroutine drains the outbox into sinks (MQTT, InfluxDB, the log). The
// core never waits on delivery and a full outbox drops rather than blocks.
//
//	outbox := notify.NewOutbox(cfg.Fleet.NotificationBuffer)
//	dispatcher := notify.NewDispatcher(outbox, notify.NewMQTTSink(client))
//	go dispatcher.Run(ctx)
//
//	outbox.Enqueue(notify.ApprovalAccepted{Serial: serial, UserID: userID, At: now})
package notify
