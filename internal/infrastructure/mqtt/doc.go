// Package mqtt provides MQTT client connectivity for the covers service.
//
// This package manages:
//   - Connection to the Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after every reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The Gray Logic state bus is an MQTT broker. Protocol bridges publish
// retained entity state onto it and execute cover commands from it; this
// service reads the former and writes the latter through the statebus
// package.
//
//	Protocol Bridges ↔ MQTT Broker ↔ statebus ↔ cover engines
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Follow every entity state
//	err = client.Subscribe(mqtt.Topics{}.AllEntityStates(), 1,
//	    func(topic string, payload []byte) error {
//	        id, _ := mqtt.Topics{}.EntityFromTopic(topic)
//	        log.Printf("%s = %s", id, payload)
//	        return nil
//	    })
//
//	// Move a cover
//	client.Publish(mqtt.Topics{}.CoverCommand("cover.living_south"),
//	    []byte(`{"id":"cmd-1","device_id":"cover.living_south","command":"set_position","parameters":{"position":40}}`), 1, false)
package mqtt
