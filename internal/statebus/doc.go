// Package statebus connects cover engines to the Gray Logic MQTT bus.
//
// Bridges publish retained entity state on graylogic/entity/{entity_id};
// the bus caches it and fans changes out to the engines' trackers. Position
// commands go out on graylogic/command/cover/{entity_id}, and blocking
// commands wait for the matching graylogic/ack/cover/{entity_id} message.
// Engine snapshots are republished, retained, on
// graylogic/core/cover/{entity_id}/state.
//
//	bridges ──entity state──▶ Bus ──StateChange──▶ cover.Engine
//	bridges ◀──command/ack─── Bus ◀──SetPosition── cover.Engine
//	clients ◀──core state──── Bus ◀──Snapshot───── cover.Broadcaster
//
// Usage:
//
//	bus, err := statebus.New(statebus.Options{Broker: mqttClient, QoS: 1})
//	if err := bus.Start(ctx); err != nil { ... }
//	defer bus.Stop()
//	deps := cover.Deps{Store: bus, Events: bus, Sink: bus, Publisher: broadcaster}
package statebus
