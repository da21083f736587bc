// Package realtime is a client for a realtime publish/subscribe broker.
//
// A Client keeps one websocket connection to the broker and multiplexes any
// number of named channels over it. Channel operations never block: they are
// applied in order on a single executor goroutine, written to the socket when
// connected and queued otherwise. After a reconnect the client replays each
// attached channel's attach and subscribe frames, carrying the id of the last
// delivered message so the broker resumes without gaps or duplicates, and then
// flushes the queue.
//
//	client, err := realtime.New(realtime.Config{
//		URL:         "wss://realtime.example.com",
//		Project:     "demo",
//		AutoConnect: true,
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	channel := client.Channel("orders")
//	channel.Subscribe("created", func(message realtime.Message) {
//		var order Order
//		_ = message.Decode(&order)
//	})
//	_ = channel.Publish("created", Order{ID: 1})
//
// Connection state changes are reported through On, OnError and Once.
package realtime
