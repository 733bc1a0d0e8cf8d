// Package mqtt is the tracker's broker transport.
//
// Core publishes notifications and firmware sync instructions here and
// listens for device firmware acknowledgements. The connection auto-reconnects
// with exponential backoff, restores subscriptions, and keeps a retained
// presence message on <prefix>/system/status with a Last Will for crashes.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.PublishJSON(topics.Notification("approval_requested"), msg)
//
// TLS should be enabled whenever the broker is reachable off-host.
package mqtt
