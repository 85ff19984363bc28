// Package control accepts updater commands over MQTT.
//
// Commands arrive on shellupdater/command/{name}:
//
//	update-firmware   online firmware update (payload ignored)
//	update-database   online database update (payload ignored)
//	connectivity      {"online": true|false}
//
// Results are not replied to directly; they surface as the usual transfer
// events on shellupdater/event/+. A command rejected before it starts (bad
// payload, another update running) is reported as a request-error event.
package control
