// Package mqtt provides the updater's MQTT event bus connection.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Event publishing with per-message QoS
//   - Command subscriptions, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The updater publishes every notification event on its own topic so a UI
// (or any other consumer) can follow an update without polling the HTTP API,
// and accepts a small set of commands on the command tree.
//
//	Shell Updater ↔ MQTT Broker ↔ UI / automation
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Command topics trigger device writes; restrict them with broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        name, _ := mqtt.Topics{}.CommandName(topic)
//	        return dispatch(name, payload)
//	    })
//
//	client.Publish(mqtt.Topics{}.Event("device-added"), payload, 1, false)
package mqtt
