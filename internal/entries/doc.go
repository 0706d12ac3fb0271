// Package entries loads cover entries and keeps their coordinators current.
//
// An entry is a named group of covers sharing one option set. Entries come
// from a YAML file:
//
//	entries:
//	  - id: south
//	    name: South facade
//	    data:
//	      covers: [cover.living_room, cover.kitchen]
//	      close_position: 0
//	      resident_sensor: binary_sensor.bedroom_occupied
//
// Options changed at runtime through the API are stored in SQLite
// (entry_options) and layered over the file data, so they survive both a
// restart and a file reload.
//
//	covers.yaml ──LoadFile/Watch──▶ Manager.Apply ──▶ cover.Registry
//	API PATCH ──▶ Manager.PatchOptions ──▶ OptionsRepository (SQLite)
//	                                  └──▶ Coordinator.UpdateOptions
package entries
